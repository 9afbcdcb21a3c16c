package repository

import (
	"context"
	"time"

	"github.com/allisson/fieldsync/internal/envelope/domain"
)

// EnvelopeRepository is the full durable queue store surface. Both database
// backends implement it; consumers depend on the narrower interfaces declared
// in their own packages.
type EnvelopeRepository interface {
	Append(ctx context.Context, env *domain.ActionEnvelope) error
	ListPending(ctx context.Context, now time.Time, limit int) ([]*domain.ActionEnvelope, error)
	MarkInFlight(ctx context.Context, ids []string) error
	MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error
	MarkFailed(ctx context.Context, ids []string, reason domain.FailureReason, errMsg *string, nextAttemptAt *time.Time) error
	PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error)
	RequeueInFlight(ctx context.Context) (int64, error)
	MaxDeviceSequence(ctx context.Context, deviceID string) (int64, error)
	PendingCount(ctx context.Context) (int64, error)
	ListFailed(ctx context.Context, limit int) ([]*domain.ActionEnvelope, error)
}

var (
	_ EnvelopeRepository = (*SQLiteEnvelopeRepository)(nil)
	_ EnvelopeRepository = (*PostgreSQLEnvelopeRepository)(nil)
)
