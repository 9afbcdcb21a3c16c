// Package usecase implements the capture API: the local-first entry point
// that turns field actions into durable queue envelopes without ever blocking
// on the network.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/fieldsync/internal/envelope/domain"
)

// EnvelopeAppender defines the queue store operation the capture flow needs.
type EnvelopeAppender interface {
	Append(ctx context.Context, env *domain.ActionEnvelope) error
}

// BlobStore persists binary payload bodies referenced by photo envelopes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Sampler produces one payload per continuous-capture tick.
type Sampler func() ([]byte, error)

// CaptureUseCase defines the interface for recording field actions.
type CaptureUseCase interface {
	// RecordAction validates the payload, assigns the next device sequence and
	// appends the envelope to the durable queue. It returns the envelope id.
	RecordAction(ctx context.Context, kind domain.ActionKind, payload []byte) (string, error)
	// RecordPhoto stores the image in the blob store and enqueues a
	// photo_upload envelope whose payload references the blob.
	RecordPhoto(ctx context.Context, image []byte, contentType string) (string, error)
	// FlushHoldback retries appending envelopes buffered after storage
	// failures. It returns how many were flushed.
	FlushHoldback(ctx context.Context) (int, error)
	// HoldbackSize returns the number of envelopes awaiting a flush.
	HoldbackSize() int
	// StartContinuousCapture records one action per interval until the handle
	// is cancelled.
	StartContinuousCapture(kind domain.ActionKind, sampler Sampler, interval time.Duration) *CaptureHandle
}
