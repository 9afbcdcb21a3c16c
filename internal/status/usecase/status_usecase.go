// Package usecase implements the observer surface: read-only queue health
// plus the manual sync trigger.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/fieldsync/internal/connectivity"
	"github.com/allisson/fieldsync/internal/envelope/domain"
)

// EnvelopeReader defines the queue store reads the observer surface needs.
type EnvelopeReader interface {
	PendingCount(ctx context.Context) (int64, error)
	ListFailed(ctx context.Context, limit int) ([]*domain.ActionEnvelope, error)
}

// Syncer exposes the coordinator operations available to observers.
type Syncer interface {
	SyncNow(ctx context.Context) error
	LastSyncAt() *time.Time
}

// ConnectivityChecker reports the committed connectivity state.
type ConnectivityChecker interface {
	State() connectivity.State
}

// Status is a point-in-time snapshot of the agent.
type Status struct {
	DeviceID     string
	Connectivity connectivity.State
	PendingCount int64
	LastSyncAt   *time.Time
}

// StatusUseCase defines the interface for the observer surface.
type StatusUseCase interface {
	Status(ctx context.Context) (*Status, error)
	ListFailed(ctx context.Context, limit int) ([]*domain.ActionEnvelope, error)
	TriggerSync(ctx context.Context) error
}

// statusUseCase implements StatusUseCase.
type statusUseCase struct {
	deviceID     string
	envelopeRepo EnvelopeReader
	syncer       Syncer
	connectivity ConnectivityChecker
}

// NewStatusUseCase creates a new StatusUseCase.
func NewStatusUseCase(
	deviceID string,
	envelopeRepo EnvelopeReader,
	syncer Syncer,
	connectivity ConnectivityChecker,
) StatusUseCase {
	return &statusUseCase{
		deviceID:     deviceID,
		envelopeRepo: envelopeRepo,
		syncer:       syncer,
		connectivity: connectivity,
	}
}

// Status returns the current agent snapshot.
func (uc *statusUseCase) Status(ctx context.Context) (*Status, error) {
	pending, err := uc.envelopeRepo.PendingCount(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		DeviceID:     uc.deviceID,
		Connectivity: uc.connectivity.State(),
		PendingCount: pending,
		LastSyncAt:   uc.syncer.LastSyncAt(),
	}, nil
}

// ListFailed returns envelopes parked in terminal failure states.
func (uc *statusUseCase) ListFailed(ctx context.Context, limit int) ([]*domain.ActionEnvelope, error) {
	return uc.envelopeRepo.ListFailed(ctx, limit)
}

// TriggerSync runs a drain cycle immediately, coalescing with any cycle in
// progress.
func (uc *statusUseCase) TriggerSync(ctx context.Context) error {
	return uc.syncer.SyncNow(ctx)
}
