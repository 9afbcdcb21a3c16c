package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupSQLiteDB(t *testing.T) {
	db := SetupSQLiteDB(t)
	defer TeardownDB(t, db)

	var count int64
	err := db.QueryRow("SELECT COUNT(*) FROM envelopes").Scan(&count)
	require.NoError(t, err, "envelopes table should exist after migrations")
	assert.Zero(t, count)
}

func TestGetMigrationsPath(t *testing.T) {
	path, err := getMigrationsPath("sqlite")
	require.NoError(t, err)
	assert.Contains(t, path, "migrations/sqlite")
}
