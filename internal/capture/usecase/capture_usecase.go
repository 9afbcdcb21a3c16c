package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	validationlib "github.com/jellydator/validation"

	"github.com/allisson/fieldsync/internal/envelope/domain"
	"github.com/allisson/fieldsync/internal/validation"
)

// photoPayload is the queue payload of a photo_upload envelope. The image
// bytes live in the blob store; the queue row carries only the reference.
type photoPayload struct {
	BlobKey     string `json:"blob_key"`
	ContentType string `json:"content_type"`
	SizeBytes   int    `json:"size_bytes"`
}

// captureUseCase implements CaptureUseCase.
type captureUseCase struct {
	factory       *domain.Factory
	envelopeRepo  EnvelopeAppender
	blobs         BlobStore
	appendRetries int
	logger        *slog.Logger

	// holdback buffers envelopes whose append failed. Sequences are already
	// assigned, so flushing in FIFO order preserves per-device ordering.
	mu       sync.Mutex
	holdback []*domain.ActionEnvelope
}

// NewCaptureUseCase creates a new CaptureUseCase.
func NewCaptureUseCase(
	factory *domain.Factory,
	envelopeRepo EnvelopeAppender,
	blobs BlobStore,
	appendRetries int,
	logger *slog.Logger,
) CaptureUseCase {
	return &captureUseCase{
		factory:       factory,
		envelopeRepo:  envelopeRepo,
		blobs:         blobs,
		appendRetries: appendRetries,
		logger:        logger,
	}
}

// RecordAction validates the payload, drains any held-back envelopes first
// and appends the new one. A storage failure parks the envelope in the
// holdback buffer and surfaces the error; the capture itself is never lost.
func (uc *captureUseCase) RecordAction(
	ctx context.Context,
	kind domain.ActionKind,
	payload []byte,
) (string, error) {
	if err := validatePayload(kind, payload); err != nil {
		return "", err
	}

	env, err := uc.factory.NewEnvelope(kind, payload)
	if err != nil {
		return "", err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	// Older envelopes go first so the store sees sequences in order.
	uc.flushLocked(ctx)

	if err := uc.appendWithRetry(ctx, env); err != nil {
		uc.holdback = append(uc.holdback, env)
		if uc.logger != nil {
			uc.logger.Warn("envelope held back after append failure",
				slog.String("envelope_id", env.ID),
				slog.Any("error", err),
			)
		}
		return env.ID, domain.ErrStorageUnavailable
	}
	return env.ID, nil
}

// RecordPhoto writes the image to the blob store, then enqueues a
// photo_upload envelope carrying the blob reference.
func (uc *captureUseCase) RecordPhoto(
	ctx context.Context,
	image []byte,
	contentType string,
) (string, error) {
	if len(image) == 0 {
		return "", validation.WrapValidationError(
			validationlib.NewError("validation_photo_empty", "image must not be empty"))
	}

	key := "photos/" + uuid.Must(uuid.NewV7()).String()
	if err := uc.blobs.Put(ctx, key, image, contentType); err != nil {
		return "", err
	}

	payload, err := json.Marshal(photoPayload{
		BlobKey:     key,
		ContentType: contentType,
		SizeBytes:   len(image),
	})
	if err != nil {
		return "", err
	}

	return uc.RecordAction(ctx, domain.ActionKindPhotoUpload, payload)
}

// FlushHoldback retries every held-back envelope and reports how many made it
// into the queue.
func (uc *captureUseCase) FlushHoldback(ctx context.Context) (int, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	before := len(uc.holdback)
	uc.flushLocked(ctx)
	flushed := before - len(uc.holdback)

	if len(uc.holdback) > 0 {
		return flushed, domain.ErrStorageUnavailable
	}
	return flushed, nil
}

// HoldbackSize returns the number of envelopes awaiting a flush.
func (uc *captureUseCase) HoldbackSize() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.holdback)
}

// StartContinuousCapture samples and records one action per interval until
// the handle is cancelled. Sampler or append failures are logged and the loop
// keeps going; a flaky sensor must not end the capture session.
func (uc *captureUseCase) StartContinuousCapture(
	kind domain.ActionKind,
	sampler Sampler,
	interval time.Duration,
) *CaptureHandle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &CaptureHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(handle.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				payload, err := sampler()
				if err != nil {
					if uc.logger != nil {
						uc.logger.Warn("sampler failed", slog.Any("error", err))
					}
					continue
				}
				if _, err := uc.RecordAction(ctx, kind, payload); err != nil && uc.logger != nil {
					uc.logger.Warn("continuous capture record failed",
						slog.String("kind", string(kind)),
						slog.Any("error", err),
					)
				}
			}
		}
	}()

	return handle
}

// flushLocked appends held-back envelopes in FIFO order, stopping at the
// first failure to keep sequence order intact. Caller holds uc.mu.
func (uc *captureUseCase) flushLocked(ctx context.Context) {
	for len(uc.holdback) > 0 {
		env := uc.holdback[0]
		if err := uc.appendWithRetry(ctx, env); err != nil {
			return
		}
		uc.holdback = uc.holdback[1:]
		if uc.logger != nil {
			uc.logger.Info("held-back envelope flushed", slog.String("envelope_id", env.ID))
		}
	}
}

// appendWithRetry retries transient append failures a configured number of
// times before giving up.
func (uc *captureUseCase) appendWithRetry(ctx context.Context, env *domain.ActionEnvelope) error {
	var err error
	for attempt := 0; attempt <= uc.appendRetries; attempt++ {
		if err = uc.envelopeRepo.Append(ctx, env); err == nil {
			return nil
		}
	}
	return err
}

// validatePayload applies the per-kind payload rules.
func validatePayload(kind domain.ActionKind, payload []byte) error {
	rules := []validationlib.Rule{validationlib.Required, validation.JSONObject}
	if kind == domain.ActionKindLocationUpdate {
		rules = append(rules, validation.Coordinates)
	}
	return validation.WrapValidationError(validationlib.Validate(payload, rules...))
}

// CaptureHandle controls one continuous-capture session.
type CaptureHandle struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Cancel stops the session. Safe to call more than once.
func (h *CaptureHandle) Cancel() {
	h.once.Do(h.cancel)
}

// Done is closed when the capture goroutine has exited.
func (h *CaptureHandle) Done() <-chan struct{} {
	return h.done
}
