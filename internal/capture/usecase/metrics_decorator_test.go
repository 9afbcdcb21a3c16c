package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/fieldsync/internal/envelope/domain"
	"github.com/allisson/fieldsync/internal/metrics"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

func TestNewCaptureUseCaseWithMetrics(t *testing.T) {
	decorator := NewCaptureUseCaseWithMetrics(newCaptureUseCase(&MockEnvelopeAppender{}, nil), &mockBusinessMetrics{})

	assert.NotNil(t, decorator)
	assert.Implements(t, (*CaptureUseCase)(nil), decorator)
}

func TestMetricsDecoratorRecordAction(t *testing.T) {
	t.Run("success records success metrics", func(t *testing.T) {
		repo := &MockEnvelopeAppender{}
		repo.On("Append", mock.Anything, mock.Anything).Return(nil)

		mockMetrics := &mockBusinessMetrics{}
		mockMetrics.On("RecordOperation", mock.Anything, "capture", "record_action", "success").Once()
		mockMetrics.On("RecordDuration", mock.Anything, "capture", "record_action", mock.Anything, "success").Once()

		decorator := NewCaptureUseCaseWithMetrics(newCaptureUseCase(repo, nil), mockMetrics)

		id, err := decorator.RecordAction(context.Background(), domain.ActionKindClockIn, []byte(`{"worker_id":"w-1"}`))
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("failure records error metrics", func(t *testing.T) {
		mockMetrics := &mockBusinessMetrics{}
		mockMetrics.On("RecordOperation", mock.Anything, "capture", "record_action", "error").Once()
		mockMetrics.On("RecordDuration", mock.Anything, "capture", "record_action", mock.Anything, "error").Once()

		decorator := NewCaptureUseCaseWithMetrics(newCaptureUseCase(&MockEnvelopeAppender{}, nil), mockMetrics)

		_, err := decorator.RecordAction(context.Background(), domain.ActionKindClockIn, nil)
		require.Error(t, err)
		mockMetrics.AssertExpectations(t)
	})
}

func TestMetricsDecoratorFlushHoldback(t *testing.T) {
	repo := &MockEnvelopeAppender{}
	repo.On("Append", mock.Anything, mock.Anything).Return(nil)

	mockMetrics := &mockBusinessMetrics{}
	mockMetrics.On("RecordOperation", mock.Anything, "capture", "flush_holdback", "success").Once()
	mockMetrics.On("RecordDuration", mock.Anything, "capture", "flush_holdback", mock.Anything, "success").Once()

	decorator := NewCaptureUseCaseWithMetrics(newCaptureUseCase(repo, nil), mockMetrics)

	flushed, err := decorator.FlushHoldback(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flushed)
	mockMetrics.AssertExpectations(t)
}
