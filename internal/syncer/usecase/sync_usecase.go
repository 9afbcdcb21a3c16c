// Package usecase implements the sync coordinator: it drains the durable
// queue against the remote endpoint with retry, backoff and idempotent
// at-least-once delivery.
package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/allisson/fieldsync/internal/connectivity"
	"github.com/allisson/fieldsync/internal/database"
	"github.com/allisson/fieldsync/internal/envelope/domain"
	"github.com/allisson/fieldsync/internal/eventbus"
)

// Config holds sync coordinator configuration.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Retention   time.Duration
}

// EnvelopeRepository defines the queue store operations the coordinator needs.
// Only the coordinator transitions envelopes out of pending.
type EnvelopeRepository interface {
	ListPending(ctx context.Context, now time.Time, limit int) ([]*domain.ActionEnvelope, error)
	MarkInFlight(ctx context.Context, ids []string) error
	MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error
	MarkFailed(ctx context.Context, ids []string, reason domain.FailureReason, errMsg *string, nextAttemptAt *time.Time) error
	PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error)
	RequeueInFlight(ctx context.Context) (int64, error)
}

// RemoteEndpoint submits an ordered batch to the sync service. Results may be
// partial: envelopes the remote never reported on are treated as undelivered.
type RemoteEndpoint interface {
	SubmitBatch(ctx context.Context, envelopes []*domain.ActionEnvelope) ([]domain.SubmissionResult, error)
}

// ConnectivityChecker reports the committed connectivity state.
type ConnectivityChecker interface {
	Online() bool
}

// UseCase defines the interface for the sync coordinator.
type UseCase interface {
	Start(ctx context.Context) error
	SyncNow(ctx context.Context) error
	LastSyncAt() *time.Time
}

// CompletedEvent is published on eventbus.TopicSyncCompleted after a drain
// cycle that delivered at least one envelope.
type CompletedEvent struct {
	Synced  int
	Retried int
	Parked  int
	At      time.Time
}

// FailureEvent is published on eventbus.TopicSyncFailed for every envelope
// parked in a terminal failure state (validation, exhausted).
type FailureEvent struct {
	EnvelopeID string
	Reason     domain.FailureReason
	Error      string
}

// SyncCoordinator implements the drain cycle over the durable queue.
type SyncCoordinator struct {
	config       Config
	txManager    database.TxManager
	envelopeRepo EnvelopeRepository
	remote       RemoteEndpoint
	connectivity ConnectivityChecker
	bus          *eventbus.Bus
	logger       *slog.Logger

	// At most one concurrent drain: concurrent triggers coalesce onto the
	// in-progress cycle.
	drains singleflight.Group

	trigger chan struct{}

	mu         sync.RWMutex
	lastSyncAt *time.Time
}

// NewSyncCoordinator creates a new SyncCoordinator.
func NewSyncCoordinator(
	config Config,
	txManager database.TxManager,
	envelopeRepo EnvelopeRepository,
	remote RemoteEndpoint,
	connectivity ConnectivityChecker,
	bus *eventbus.Bus,
	logger *slog.Logger,
) *SyncCoordinator {
	return &SyncCoordinator{
		config:       config,
		txManager:    txManager,
		envelopeRepo: envelopeRepo,
		remote:       remote,
		connectivity: connectivity,
		bus:          bus,
		logger:       logger,
		trigger:      make(chan struct{}, 1),
	}
}

// LastSyncAt returns the completion time of the most recent successful drain.
func (uc *SyncCoordinator) LastSyncAt() *time.Time {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.lastSyncAt
}

// Trigger requests a drain cycle without waiting for it. Triggers arriving
// while one is already queued are dropped.
func (uc *SyncCoordinator) Trigger() {
	select {
	case uc.trigger <- struct{}{}:
	default:
	}
}

// SyncNow runs a drain cycle immediately (manual "sync now"), coalescing with
// any cycle already in progress.
func (uc *SyncCoordinator) SyncNow(ctx context.Context) error {
	return uc.drain(ctx)
}

// Start runs the coordinator loop until the context is cancelled. It requeues
// envelopes stranded in_flight by a previous crash, subscribes to
// connectivity transitions and drains on a periodic ticker while online. An
// in-progress cycle finishes its batch before shutdown is honored.
func (uc *SyncCoordinator) Start(ctx context.Context) error {
	requeued, err := uc.envelopeRepo.RequeueInFlight(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 && uc.logger != nil {
		uc.logger.Info("requeued envelopes stranded in flight", slog.Int64("count", requeued))
	}

	if uc.bus != nil {
		uc.bus.Subscribe(eventbus.TopicConnectivityChanged, func(event any) {
			change, ok := event.(connectivity.ChangeEvent)
			if ok && change.Online {
				uc.Trigger()
			}
		})
	}

	if uc.logger != nil {
		uc.logger.Info("starting sync coordinator",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping sync coordinator")
			}
			return ctx.Err()
		case <-ticker.C:
			uc.drainIfOnline(ctx)
		case <-uc.trigger:
			uc.drainIfOnline(ctx)
		}
	}
}

func (uc *SyncCoordinator) drainIfOnline(ctx context.Context) {
	if uc.connectivity != nil && !uc.connectivity.Online() {
		return
	}
	if err := uc.drain(ctx); err != nil && uc.logger != nil {
		uc.logger.Error("drain cycle failed", slog.Any("error", err))
	}
}

// drain executes one coalesced drain cycle.
func (uc *SyncCoordinator) drain(ctx context.Context) error {
	_, err, _ := uc.drains.Do("drain", func() (any, error) {
		return nil, uc.drainCycle(ctx)
	})
	return err
}

// drainCycle claims a batch, submits it in device-sequence order and settles
// every claimed envelope into synced or failed. Claiming marks envelopes
// in_flight inside one transaction so a crash mid-cycle is visible on
// restart instead of silently re-sending an unbounded backlog.
func (uc *SyncCoordinator) drainCycle(ctx context.Context) error {
	now := time.Now().UTC()

	var claimed []*domain.ActionEnvelope
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		envelopes, listErr := uc.envelopeRepo.ListPending(ctx, now, uc.config.BatchSize)
		if listErr != nil {
			return listErr
		}
		if len(envelopes) == 0 {
			return nil
		}
		if markErr := uc.envelopeRepo.MarkInFlight(ctx, envelopeIDs(envelopes)); markErr != nil {
			return markErr
		}
		claimed = envelopes
		return nil
	})
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		uc.purge(ctx, now)
		return nil
	}

	if uc.logger != nil {
		uc.logger.Info("draining envelopes", slog.Int("count", len(claimed)))
	}

	results, submitErr := uc.remote.SubmitBatch(ctx, claimed)

	byID := make(map[string]domain.SubmissionResult, len(results))
	for _, result := range results {
		byID[result.ID] = result
	}

	var syncedIDs []string
	var retried, parked int

	for _, env := range claimed {
		result, reported := byID[env.ID]
		switch {
		case reported && result.Status == domain.SubmissionAccepted:
			syncedIDs = append(syncedIDs, env.ID)
		case reported && result.Status == domain.SubmissionRejected:
			parked++
			uc.parkTerminal(ctx, env, domain.FailureReasonValidation, result.Reason)
		case reported && result.Status == domain.SubmissionRetryLater:
			retried, parked = uc.settleRetryable(ctx, env, domain.FailureReasonServer, result.Reason, now, retried, parked)
		default:
			// Unreported: the transport failed before the remote acked this
			// envelope. It may still have been applied; re-delivery is safe
			// because the remote dedupes on envelope id.
			msg := "submission not acknowledged"
			if submitErr != nil {
				msg = submitErr.Error()
			}
			retried, parked = uc.settleRetryable(ctx, env, domain.FailureReasonNetwork, msg, now, retried, parked)
		}
	}

	if len(syncedIDs) > 0 {
		if err := uc.envelopeRepo.MarkSynced(ctx, syncedIDs, now); err != nil {
			return err
		}
	}

	uc.mu.Lock()
	uc.lastSyncAt = &now
	uc.mu.Unlock()

	if uc.bus != nil {
		uc.bus.Publish(eventbus.TopicSyncCompleted, CompletedEvent{
			Synced:  len(syncedIDs),
			Retried: retried,
			Parked:  parked,
			At:      now,
		})
	}

	uc.purge(ctx, now)
	return submitErr
}

// settleRetryable schedules a retry with backoff, or parks the envelope as
// exhausted once it runs out of attempts. A stuck envelope stops occupying
// drain slots either way, so it never halts the rest of the queue.
func (uc *SyncCoordinator) settleRetryable(
	ctx context.Context,
	env *domain.ActionEnvelope,
	reason domain.FailureReason,
	msg string,
	now time.Time,
	retried, parked int,
) (int, int) {
	if env.Attempts+1 >= uc.config.MaxAttempts {
		uc.parkTerminal(ctx, env, domain.FailureReasonExhausted, msg)
		return retried, parked + 1
	}

	nextAttempt := now.Add(backoffDelay(env.Attempts, uc.config.BackoffBase, uc.config.BackoffCap))
	if err := uc.envelopeRepo.MarkFailed(ctx, []string{env.ID}, reason, &msg, &nextAttempt); err != nil && uc.logger != nil {
		uc.logger.Error("failed to schedule retry",
			slog.String("envelope_id", env.ID),
			slog.Any("error", err),
		)
	}
	return retried + 1, parked
}

// parkTerminal marks an envelope terminally failed and surfaces it to
// observers for manual intervention.
func (uc *SyncCoordinator) parkTerminal(
	ctx context.Context,
	env *domain.ActionEnvelope,
	reason domain.FailureReason,
	msg string,
) {
	if err := uc.envelopeRepo.MarkFailed(ctx, []string{env.ID}, reason, &msg, nil); err != nil && uc.logger != nil {
		uc.logger.Error("failed to park envelope",
			slog.String("envelope_id", env.ID),
			slog.Any("error", err),
		)
	}

	if uc.logger != nil {
		uc.logger.Warn("envelope parked",
			slog.String("envelope_id", env.ID),
			slog.String("reason", string(reason)),
			slog.String("error", msg),
		)
	}
	if uc.bus != nil {
		uc.bus.Publish(eventbus.TopicSyncFailed, FailureEvent{
			EnvelopeID: env.ID,
			Reason:     reason,
			Error:      msg,
		})
	}
}

// purge removes synced envelopes past the retention window.
func (uc *SyncCoordinator) purge(ctx context.Context, now time.Time) {
	purged, err := uc.envelopeRepo.PurgeSynced(ctx, now.Add(-uc.config.Retention))
	if err != nil {
		if uc.logger != nil {
			uc.logger.Error("purge failed", slog.Any("error", err))
		}
		return
	}
	if purged > 0 && uc.logger != nil {
		uc.logger.Debug("purged synced envelopes", slog.Int64("count", purged))
	}
}

func envelopeIDs(envelopes []*domain.ActionEnvelope) []string {
	ids := make([]string, len(envelopes))
	for i, env := range envelopes {
		ids[i] = env.ID
	}
	return ids
}
