package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/fieldsync/internal/envelope/domain"
)

func newTestEnvelope(t *testing.T, seq int64) *domain.ActionEnvelope {
	t.Helper()
	factory := domain.NewFactory("device-1", seq-1, 1024)
	env, err := factory.NewEnvelope(domain.ActionKindClockIn, []byte(`{"t":"09:00"}`))
	require.NoError(t, err)
	return env
}

func envelopeColumns() []string {
	return []string{
		"id", "device_id", "device_sequence", "kind", "payload", "checksum", "captured_at",
		"sync_state", "failure_reason", "last_error", "attempts", "next_attempt_at",
		"synced_at", "created_at", "updated_at",
	}
}

func envelopeRow(rows *sqlmock.Rows, env *domain.ActionEnvelope) *sqlmock.Rows {
	return rows.AddRow(
		env.ID, env.DeviceID, env.DeviceSequence, string(env.Kind), env.Payload, env.Checksum,
		env.CapturedAt, string(env.SyncState), nil, nil, env.Attempts, nil, nil,
		env.CreatedAt, env.UpdatedAt,
	)
}

func TestSQLiteEnvelopeRepository_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)
	env := newTestEnvelope(t, 1)

	mock.ExpectExec("INSERT INTO envelopes").
		WithArgs(
			env.ID, env.DeviceID, env.DeviceSequence, env.Kind, env.Payload, env.Checksum,
			env.CapturedAt, env.SyncState, nil, nil, env.Attempts, nil, nil,
			env.CreatedAt, env.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Append(context.Background(), env)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_ListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	first := newTestEnvelope(t, 1)
	second := newTestEnvelope(t, 2)
	rows := sqlmock.NewRows(envelopeColumns())
	envelopeRow(rows, first)
	envelopeRow(rows, second)

	mock.ExpectQuery("SELECT (.+) FROM envelopes").WillReturnRows(rows)

	got, err := repo.ListPending(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_ListPendingIsolatesCorruptRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	intact := newTestEnvelope(t, 1)
	damaged := newTestEnvelope(t, 2)
	damaged.Payload = []byte(`{"t":"tampered"}`) // checksum no longer matches

	rows := sqlmock.NewRows(envelopeColumns())
	envelopeRow(rows, intact)
	envelopeRow(rows, damaged)

	mock.ExpectQuery("SELECT (.+) FROM envelopes").WillReturnRows(rows)
	// The damaged row is parked as failed(corrupt) and skipped.
	mock.ExpectExec("UPDATE envelopes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.ListPending(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, intact.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_MarkInFlight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	mock.ExpectExec("UPDATE envelopes").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err = repo.MarkInFlight(context.Background(), []string{"id-1", "id-2"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_MarkInFlightNoIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	// No ids means no statement at all.
	err = repo.MarkInFlight(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_MarkSynced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	mock.ExpectExec("UPDATE envelopes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.MarkSynced(context.Background(), []string{"id-1"}, time.Now().UTC())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_MarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	msg := "connection refused"
	next := time.Now().UTC().Add(2 * time.Second)

	mock.ExpectExec("UPDATE envelopes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.MarkFailed(context.Background(), []string{"id-1"}, domain.FailureReasonNetwork, &msg, &next)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_PurgeSynced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	mock.ExpectExec("DELETE FROM envelopes").
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := repo.PurgeSynced(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_RequeueInFlight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	mock.ExpectExec("UPDATE envelopes").
		WillReturnResult(sqlmock.NewResult(0, 2))

	requeued, err := repo.RequeueInFlight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), requeued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_MaxDeviceSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("device-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))

	seq, err := repo.MaxDeviceSequence(context.Background(), "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_PendingCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	count, err := repo.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEnvelopeRepository_ListFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSQLiteEnvelopeRepository(db)

	parked := newTestEnvelope(t, 3)
	parked.SyncState = domain.SyncStateFailed
	reason := string(domain.FailureReasonValidation)
	msg := "rejected: bad form"

	rows := sqlmock.NewRows(envelopeColumns()).AddRow(
		parked.ID, parked.DeviceID, parked.DeviceSequence, string(parked.Kind),
		parked.Payload, parked.Checksum, parked.CapturedAt, string(parked.SyncState),
		reason, msg, 1, nil, nil, parked.CreatedAt, parked.UpdatedAt,
	)

	mock.ExpectQuery("SELECT (.+) FROM envelopes").WillReturnRows(rows)

	got, err := repo.ListFailed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].FailureReason)
	assert.Equal(t, domain.FailureReasonValidation, *got[0].FailureReason)
	require.NotNil(t, got[0].LastError)
	assert.Equal(t, msg, *got[0].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
