// Package domain defines the core envelope domain entities and types.
package domain

import (
	"time"

	"golang.org/x/crypto/blake2b"
)

// ActionKind identifies the type of captured field action. The payload is
// opaque to the queue; the kind only routes remote-side processing.
type ActionKind string

const (
	ActionKindClockIn        ActionKind = "clock_in"
	ActionKindClockOut       ActionKind = "clock_out"
	ActionKindLocationUpdate ActionKind = "location_update"
	ActionKindPhotoUpload    ActionKind = "photo_upload"
	ActionKindFormSubmit     ActionKind = "form_submit"
)

// Kinds lists every supported action kind.
var Kinds = []ActionKind{
	ActionKindClockIn,
	ActionKindClockOut,
	ActionKindLocationUpdate,
	ActionKindPhotoUpload,
	ActionKindFormSubmit,
}

// Valid reports whether the kind is one of the supported action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionKindClockIn, ActionKindClockOut, ActionKindLocationUpdate,
		ActionKindPhotoUpload, ActionKindFormSubmit:
		return true
	}
	return false
}

// SyncState represents the delivery state of an envelope.
type SyncState string

const (
	SyncStatePending  SyncState = "pending"
	SyncStateInFlight SyncState = "in_flight"
	SyncStateSynced   SyncState = "synced"
	SyncStateFailed   SyncState = "failed"
)

// CanTransition reports whether moving from s to next is a legal forward
// transition. States never move backward and never skip in_flight.
func (s SyncState) CanTransition(next SyncState) bool {
	switch s {
	case SyncStatePending:
		return next == SyncStateInFlight
	case SyncStateInFlight:
		return next == SyncStateSynced || next == SyncStateFailed
	case SyncStateFailed:
		// Retryable failures re-enter delivery through in_flight.
		return next == SyncStateInFlight
	case SyncStateSynced:
		return false
	}
	return false
}

// FailureReason classifies why delivery of an envelope failed.
type FailureReason string

const (
	// FailureReasonNetwork covers transport errors and timeouts; retryable.
	FailureReasonNetwork FailureReason = "network"
	// FailureReasonServer covers remote 5xx / retry-later responses; retryable.
	FailureReasonServer FailureReason = "server"
	// FailureReasonValidation covers remote 4xx rejections; terminal.
	FailureReasonValidation FailureReason = "validation"
	// FailureReasonCorrupt marks an envelope whose stored payload no longer
	// matches its checksum; terminal, isolated from the rest of the queue.
	FailureReasonCorrupt FailureReason = "corrupt"
	// FailureReasonExhausted marks an envelope that ran out of delivery
	// attempts; terminal until an operator intervenes.
	FailureReasonExhausted FailureReason = "exhausted"
)

// Retryable reports whether envelopes failed for this reason re-enter the
// drain cycle automatically.
func (r FailureReason) Retryable() bool {
	return r == FailureReasonNetwork || r == FailureReasonServer
}

// ActionEnvelope is the immutable durable record wrapping one captured field
// action. Identity fields (ID, DeviceID, DeviceSequence, Kind, Payload,
// CapturedAt) never change after construction; only the delivery-tracking
// fields are mutated, and only by the queue store.
type ActionEnvelope struct {
	ID             string
	DeviceID       string
	DeviceSequence int64
	Kind           ActionKind
	Payload        []byte
	Checksum       []byte
	CapturedAt     time.Time
	SyncState      SyncState
	FailureReason  *FailureReason
	LastError      *string
	Attempts       int
	NextAttemptAt  *time.Time
	SyncedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PayloadChecksum computes the checksum stored alongside an envelope payload.
// The queue store re-verifies it on read to isolate corrupted rows.
func PayloadChecksum(payload []byte) []byte {
	sum := blake2b.Sum256(payload)
	return sum[:]
}

// VerifyPayload reports whether the stored payload still matches the checksum
// recorded at capture time.
func (e *ActionEnvelope) VerifyPayload() bool {
	if len(e.Checksum) != blake2b.Size256 {
		return false
	}
	sum := blake2b.Sum256(e.Payload)
	for i, b := range sum {
		if e.Checksum[i] != b {
			return false
		}
	}
	return true
}

// Terminal reports whether the envelope is parked in a failure state that the
// sync coordinator will not retry.
func (e *ActionEnvelope) Terminal() bool {
	return e.SyncState == SyncStateFailed && e.FailureReason != nil && !e.FailureReason.Retryable()
}
