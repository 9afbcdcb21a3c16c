package domain

import (
	"fmt"
	"sync"
	"time"
)

// Factory constructs envelopes for one device. It owns the per-device
// sequence counter and the capture-timestamp clamp, so construction is pure:
// no I/O, no shared mutable state outside the factory itself.
type Factory struct {
	deviceID       string
	maxPayloadSize int
	now            func() time.Time

	mu             sync.Mutex
	sequence       int64
	lastCapturedAt time.Time
}

// NewFactory creates an envelope factory for the given device. lastSequence
// seeds the counter from the queue store so sequences stay gap-free across
// restarts.
func NewFactory(deviceID string, lastSequence int64, maxPayloadSize int) *Factory {
	return &Factory{
		deviceID:       deviceID,
		maxPayloadSize: maxPayloadSize,
		now:            time.Now,
		sequence:       lastSequence,
	}
}

// WithClock overrides the wall clock. Test use only.
func (f *Factory) WithClock(now func() time.Time) *Factory {
	f.now = now
	return f
}

// NewEnvelope builds a pending envelope with a fresh id, the next device
// sequence and a capture timestamp clamped to be monotonically non-decreasing.
// Rejects payloads over the configured maximum with ErrPayloadTooLarge.
func (f *Factory) NewEnvelope(kind ActionKind, payload []byte) (*ActionEnvelope, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if f.maxPayloadSize > 0 && len(payload) > f.maxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	capturedAt := f.now().UTC()
	if capturedAt.Before(f.lastCapturedAt) {
		// Wall clock went backwards; clamp against the previous envelope.
		capturedAt = f.lastCapturedAt
	}
	f.lastCapturedAt = capturedAt

	f.sequence++

	body := make([]byte, len(payload))
	copy(body, payload)

	return &ActionEnvelope{
		ID:             fmt.Sprintf("%s-%d-%d", f.deviceID, f.sequence, capturedAt.UnixMilli()),
		DeviceID:       f.deviceID,
		DeviceSequence: f.sequence,
		Kind:           kind,
		Payload:        body,
		Checksum:       PayloadChecksum(body),
		CapturedAt:     capturedAt,
		SyncState:      SyncStatePending,
		CreatedAt:      capturedAt,
		UpdatedAt:      capturedAt,
	}, nil
}
