package usecase

import (
	"context"
	"time"

	"github.com/allisson/fieldsync/internal/envelope/domain"
	"github.com/allisson/fieldsync/internal/metrics"
)

// captureUseCaseWithMetrics decorates CaptureUseCase with metrics instrumentation.
type captureUseCaseWithMetrics struct {
	next    CaptureUseCase
	metrics metrics.BusinessMetrics
}

// NewCaptureUseCaseWithMetrics wraps a CaptureUseCase with metrics recording.
func NewCaptureUseCaseWithMetrics(useCase CaptureUseCase, m metrics.BusinessMetrics) CaptureUseCase {
	return &captureUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// RecordAction records metrics for action captures.
func (c *captureUseCaseWithMetrics) RecordAction(
	ctx context.Context,
	kind domain.ActionKind,
	payload []byte,
) (string, error) {
	start := time.Now()
	id, err := c.next.RecordAction(ctx, kind, payload)

	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "capture", "record_action", status)
	c.metrics.RecordDuration(ctx, "capture", "record_action", time.Since(start), status)

	return id, err
}

// RecordPhoto records metrics for photo captures.
func (c *captureUseCaseWithMetrics) RecordPhoto(
	ctx context.Context,
	image []byte,
	contentType string,
) (string, error) {
	start := time.Now()
	id, err := c.next.RecordPhoto(ctx, image, contentType)

	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "capture", "record_photo", status)
	c.metrics.RecordDuration(ctx, "capture", "record_photo", time.Since(start), status)

	return id, err
}

// FlushHoldback records metrics for holdback flushes.
func (c *captureUseCaseWithMetrics) FlushHoldback(ctx context.Context) (int, error) {
	start := time.Now()
	flushed, err := c.next.FlushHoldback(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "capture", "flush_holdback", status)
	c.metrics.RecordDuration(ctx, "capture", "flush_holdback", time.Since(start), status)

	return flushed, err
}

// HoldbackSize passes through without instrumentation.
func (c *captureUseCaseWithMetrics) HoldbackSize() int {
	return c.next.HoldbackSize()
}

// StartContinuousCapture passes through without instrumentation.
func (c *captureUseCaseWithMetrics) StartContinuousCapture(
	kind domain.ActionKind,
	sampler Sampler,
	interval time.Duration,
) *CaptureHandle {
	return c.next.StartContinuousCapture(kind, sampler, interval)
}
