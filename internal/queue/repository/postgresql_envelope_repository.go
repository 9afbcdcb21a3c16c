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

// PostgreSQLEnvelopeRepository handles envelope persistence for PostgreSQL.
// Used when the agent runs against a hosted queue database instead of the
// device-local sqlite file.
type PostgreSQLEnvelopeRepository struct {
	db *sql.DB
}

// NewPostgreSQLEnvelopeRepository creates a new PostgreSQLEnvelopeRepository.
func NewPostgreSQLEnvelopeRepository(db *sql.DB) *PostgreSQLEnvelopeRepository {
	return &PostgreSQLEnvelopeRepository{
		db: db,
	}
}

const pgEnvelopeColumns = `id, device_id, device_sequence, kind, payload, checksum, captured_at,
	sync_state, failure_reason, last_error, attempts, next_attempt_at, synced_at, created_at, updated_at`

// Append durably inserts a new envelope in pending state.
func (r *PostgreSQLEnvelopeRepository) Append(ctx context.Context, env *domain.ActionEnvelope) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO envelopes (` + pgEnvelopeColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := querier.ExecContext(ctx, query,
		env.ID, env.DeviceID, env.DeviceSequence, env.Kind, env.Payload, env.Checksum,
		env.CapturedAt, env.SyncState, env.FailureReason, env.LastError, env.Attempts,
		env.NextAttemptAt, env.SyncedAt, env.CreatedAt, env.UpdatedAt)

	return err
}

// ListPending returns envelopes eligible for delivery in ascending device
// sequence order; corrupted rows are marked failed(corrupt) and excluded.
func (r *PostgreSQLEnvelopeRepository) ListPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.ActionEnvelope, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + pgEnvelopeColumns + `
			  FROM envelopes
			  WHERE (sync_state = $1
			         OR (sync_state = $2 AND failure_reason IN ($3, $4)))
			    AND (next_attempt_at IS NULL OR next_attempt_at <= $5)
			  ORDER BY device_sequence ASC
			  LIMIT $6
			  FOR UPDATE SKIP LOCKED`

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
		msg := "payload checksum mismatch"
		if err := r.MarkFailed(ctx, corruptIDs, domain.FailureReasonCorrupt, &msg, nil); err != nil {
			return nil, err
		}
	}

	return envelopes, nil
}

// MarkInFlight transitions the given envelopes to in_flight. Unknown ids and
// envelopes not in a claimable state are ignored.
func (r *PostgreSQLEnvelopeRepository) MarkInFlight(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	placeholders, next := pgPlaceholders(len(ids), 3)
	query := fmt.Sprintf(`UPDATE envelopes
			  SET sync_state = $1, updated_at = $2
			  WHERE id IN (%s) AND sync_state IN ($%d, $%d)`, placeholders, next, next+1)

	args := []any{domain.SyncStateInFlight, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, domain.SyncStatePending, domain.SyncStateFailed)

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// MarkSynced transitions the given envelopes to synced. Unknown ids are ignored.
func (r *PostgreSQLEnvelopeRepository) MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	placeholders, next := pgPlaceholders(len(ids), 4)
	query := fmt.Sprintf(`UPDATE envelopes
			  SET sync_state = $1, failure_reason = NULL, last_error = NULL,
			      next_attempt_at = NULL, synced_at = $2, updated_at = $3
			  WHERE id IN (%s) AND sync_state = $%d`, placeholders, next)

	args := []any{domain.SyncStateSynced, syncedAt, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, domain.SyncStateInFlight)

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// MarkFailed records a delivery failure for the given envelopes, incrementing
// attempts. Unknown ids are ignored.
func (r *PostgreSQLEnvelopeRepository) MarkFailed(
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

	placeholders, next := pgPlaceholders(len(ids), 6)
	query := fmt.Sprintf(`UPDATE envelopes
			  SET sync_state = $1, failure_reason = $2, last_error = $3,
			      attempts = attempts + 1, next_attempt_at = $4, updated_at = $5
			  WHERE id IN (%s) AND sync_state != $%d`, placeholders, next)

	args := []any{domain.SyncStateFailed, reason, errMsg, nextAttemptAt, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, domain.SyncStateSynced)

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// PurgeSynced removes synced envelopes past the retention window.
func (r *PostgreSQLEnvelopeRepository) PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM envelopes WHERE sync_state = $1 AND synced_at < $2`

	result, err := querier.ExecContext(ctx, query, domain.SyncStateSynced, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RequeueInFlight returns envelopes stuck in_flight to pending (crash recovery).
func (r *PostgreSQLEnvelopeRepository) RequeueInFlight(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE envelopes SET sync_state = $1, updated_at = $2 WHERE sync_state = $3`

	result, err := querier.ExecContext(ctx, query,
		domain.SyncStatePending, time.Now().UTC(), domain.SyncStateInFlight)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MaxDeviceSequence returns the highest sequence stored for the device.
func (r *PostgreSQLEnvelopeRepository) MaxDeviceSequence(ctx context.Context, deviceID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COALESCE(MAX(device_sequence), 0) FROM envelopes WHERE device_id = $1`

	var seq int64
	if err := querier.QueryRowContext(ctx, query, deviceID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// PendingCount returns the number of envelopes not yet delivered and not
// terminally failed.
func (r *PostgreSQLEnvelopeRepository) PendingCount(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM envelopes
			  WHERE sync_state IN ($1, $2)
			     OR (sync_state = $3 AND failure_reason IN ($4, $5))`

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

// ListFailed returns terminally failed envelopes for operator review.
func (r *PostgreSQLEnvelopeRepository) ListFailed(ctx context.Context, limit int) ([]*domain.ActionEnvelope, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + pgEnvelopeColumns + `
			  FROM envelopes
			  WHERE sync_state = $1 AND failure_reason IN ($2, $3, $4)
			  ORDER BY device_sequence ASC
			  LIMIT $5`

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

// pgPlaceholders builds "$start, $start+1, ..." for n parameters and returns
// the next free placeholder index.
func pgPlaceholders(n, start int) (string, int) {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", "), start + n
}
