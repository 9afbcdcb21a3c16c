// Package repository provides data persistence implementations for the
// durable action queue.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/allisson/fieldsync/internal/database"
	"github.com/allisson/fieldsync/internal/envelope/domain"
)

// SQLiteEnvelopeRepository handles envelope persistence for SQLite, the
// device-local backend.
type SQLiteEnvelopeRepository struct {
	db *sql.DB
}

// NewSQLiteEnvelopeRepository creates a new SQLiteEnvelopeRepository.
func NewSQLiteEnvelopeRepository(db *sql.DB) *SQLiteEnvelopeRepository {
	return &SQLiteEnvelopeRepository{
		db: db,
	}
}

const sqliteEnvelopeColumns = `id, device_id, device_sequence, kind, payload, checksum, captured_at,
	sync_state, failure_reason, last_error, attempts, next_attempt_at, synced_at, created_at, updated_at`

// Append durably inserts a new envelope in pending state.
func (r *SQLiteEnvelopeRepository) Append(ctx context.Context, env *domain.ActionEnvelope) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO envelopes (` + sqliteEnvelopeColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query,
		env.ID, env.DeviceID, env.DeviceSequence, env.Kind, env.Payload, env.Checksum,
		env.CapturedAt, env.SyncState, env.FailureReason, env.LastError, env.Attempts,
		env.NextAttemptAt, env.SyncedAt, env.CreatedAt, env.UpdatedAt)

	return err
}

// ListPending returns envelopes eligible for delivery in ascending device
// sequence order: pending rows plus retryably-failed rows whose backoff is
// due. Rows whose payload fails checksum verification are marked
// failed(corrupt) and excluded so a damaged row never blocks the queue.
func (r *SQLiteEnvelopeRepository) ListPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.ActionEnvelope, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + sqliteEnvelopeColumns + `
			  FROM envelopes
			  WHERE (sync_state = ?
			         OR (sync_state = ? AND failure_reason IN (?, ?)))
			    AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			  ORDER BY device_sequence ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query,
		domain.SyncStatePending, domain.SyncStateFailed,
		domain.FailureReasonNetwork, domain.FailureReasonServer,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	envelopes, corruptIDs, err := scanAndVerifyEnvelopes(rows)
	if err != nil {
		return nil, err
	}

	if len(corruptIDs) > 0 {
		reason := domain.FailureReasonCorrupt
		msg := "payload checksum mismatch"
		if err := r.MarkFailed(ctx, corruptIDs, reason, &msg, nil); err != nil {
			return nil, err
		}
	}

	return envelopes, nil
}

// MarkInFlight transitions the given envelopes to in_flight. Unknown ids and
// envelopes not in a claimable state are ignored, so replays after a crash
// mid-sync are harmless.
func (r *SQLiteEnvelopeRepository) MarkInFlight(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	query := fmt.Sprintf(`UPDATE envelopes
			  SET sync_state = ?, updated_at = ?
			  WHERE id IN (%s) AND sync_state IN (?, ?)`, sqlitePlaceholders(len(ids)))

	args := []any{domain.SyncStateInFlight, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, domain.SyncStatePending, domain.SyncStateFailed)

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// MarkSynced transitions the given envelopes to synced. Unknown ids are ignored.
func (r *SQLiteEnvelopeRepository) MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	query := fmt.Sprintf(`UPDATE envelopes
			  SET sync_state = ?, failure_reason = NULL, last_error = NULL,
			      next_attempt_at = NULL, synced_at = ?, updated_at = ?
			  WHERE id IN (%s) AND sync_state = ?`, sqlitePlaceholders(len(ids)))

	args := []any{domain.SyncStateSynced, syncedAt, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, domain.SyncStateInFlight)

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// MarkFailed records a delivery failure for the given envelopes, incrementing
// attempts. nextAttemptAt schedules the retry for retryable reasons and is
// nil for terminal ones. Unknown ids are ignored.
func (r *SQLiteEnvelopeRepository) MarkFailed(
	ctx context.Context,
	ids []string,
	reason domain.FailureReason,
	errMsg *string,
	nextAttemptAt *time.Time,
) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	query := fmt.Sprintf(`UPDATE envelopes
			  SET sync_state = ?, failure_reason = ?, last_error = ?,
			      attempts = attempts + 1, next_attempt_at = ?, updated_at = ?
			  WHERE id IN (%s) AND sync_state != ?`, sqlitePlaceholders(len(ids)))

	args := []any{domain.SyncStateFailed, reason, errMsg, nextAttemptAt, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, domain.SyncStateSynced)

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// PurgeSynced removes synced envelopes past the retention window. Envelopes
// in any other state are never purged.
func (r *SQLiteEnvelopeRepository) PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM envelopes WHERE sync_state = ? AND synced_at < ?`

	result, err := querier.ExecContext(ctx, query, domain.SyncStateSynced, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RequeueInFlight returns envelopes stuck in_flight to pending. Called once on
// startup: a crash mid-drain leaves claimed rows behind, and re-delivering
// them is safe because the remote dedupes on envelope id.
func (r *SQLiteEnvelopeRepository) RequeueInFlight(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE envelopes SET sync_state = ?, updated_at = ? WHERE sync_state = ?`

	result, err := querier.ExecContext(ctx, query,
		domain.SyncStatePending, time.Now().UTC(), domain.SyncStateInFlight)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MaxDeviceSequence returns the highest sequence stored for the device, or
// zero when the queue is empty. Seeds the envelope factory on startup.
func (r *SQLiteEnvelopeRepository) MaxDeviceSequence(ctx context.Context, deviceID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COALESCE(MAX(device_sequence), 0) FROM envelopes WHERE device_id = ?`

	var seq int64
	if err := querier.QueryRowContext(ctx, query, deviceID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// PendingCount returns the number of envelopes not yet delivered and not
// terminally failed.
func (r *SQLiteEnvelopeRepository) PendingCount(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM envelopes
			  WHERE sync_state IN (?, ?)
			     OR (sync_state = ? AND failure_reason IN (?, ?))`

	var count int64
	err := querier.QueryRowContext(ctx, query,
		domain.SyncStatePending, domain.SyncStateInFlight,
		domain.SyncStateFailed,
		domain.FailureReasonNetwork, domain.FailureReasonServer).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListFailed returns terminally failed envelopes (validation, corrupt,
// exhausted) in ascending device sequence order for operator review.
func (r *SQLiteEnvelopeRepository) ListFailed(ctx context.Context, limit int) ([]*domain.ActionEnvelope, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + sqliteEnvelopeColumns + `
			  FROM envelopes
			  WHERE sync_state = ? AND failure_reason IN (?, ?, ?)
			  ORDER BY device_sequence ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query,
		domain.SyncStateFailed,
		domain.FailureReasonValidation, domain.FailureReasonCorrupt, domain.FailureReasonExhausted,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var envelopes []*domain.ActionEnvelope
	for rows.Next() {
		env, scanErr := scanEnvelope(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return envelopes, nil
}

// sqlitePlaceholders builds "?, ?, ?" for n parameters.
func sqlitePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanEnvelope scans one envelope row.
func scanEnvelope(rows *sql.Rows) (*domain.ActionEnvelope, error) {
	var env domain.ActionEnvelope
	err := rows.Scan(
		&env.ID, &env.DeviceID, &env.DeviceSequence, &env.Kind, &env.Payload, &env.Checksum,
		&env.CapturedAt, &env.SyncState, &env.FailureReason, &env.LastError, &env.Attempts,
		&env.NextAttemptAt, &env.SyncedAt, &env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// scanAndVerifyEnvelopes scans all rows and partitions them into intact
// envelopes and the ids of rows failing checksum verification.
func scanAndVerifyEnvelopes(rows *sql.Rows) ([]*domain.ActionEnvelope, []string, error) {
	var envelopes []*domain.ActionEnvelope
	var corruptIDs []string

	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, nil, err
		}
		if !env.VerifyPayload() {
			corruptIDs = append(corruptIDs, env.ID)
			continue
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return envelopes, corruptIDs, nil
}
