package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 256*1024, cfg.CaptureMaxPayloadBytes)
	assert.Equal(t, 60*time.Second, cfg.SyncInterval)
	assert.Equal(t, 2*time.Second, cfg.SyncBackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.SyncBackoffCap)
	assert.Equal(t, 2*time.Second, cfg.ProbeDebounce)
	assert.Equal(t, 50, cfg.SyncBatchSize)
	assert.Equal(t, 8, cfg.SyncMaxAttempts)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "fieldsync", cfg.MetricsNamespace)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_CONNECTION_STRING", "postgres://u:p@localhost:5432/q?sslmode=disable")
	t.Setenv("SYNC_BATCH_SIZE", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://u:p@localhost:5432/q?sslmode=disable", cfg.DBConnectionString)
	assert.Equal(t, 10, cfg.SyncBatchSize)
	assert.Equal(t, "debug", cfg.GetGinMode())
}

func TestQueueDSN(t *testing.T) {
	t.Run("explicit connection string wins", func(t *testing.T) {
		cfg := &Config{DBConnectionString: "postgres://u:p@localhost/q"}
		assert.Equal(t, "postgres://u:p@localhost/q", cfg.QueueDSN())
	})

	t.Run("sqlite defaults under data dir", func(t *testing.T) {
		cfg := &Config{DataDir: "/var/lib/fieldsync"}
		dsn := cfg.QueueDSN()
		assert.Contains(t, dsn, filepath.Join("/var/lib/fieldsync", "queue.db"))
		assert.Contains(t, dsn, "journal_mode(WAL)")
	})
}

func TestGetGinMode(t *testing.T) {
	assert.Equal(t, "debug", (&Config{LogLevel: "debug"}).GetGinMode())
	assert.Equal(t, "release", (&Config{LogLevel: "info"}).GetGinMode())
	assert.Equal(t, "release", (&Config{LogLevel: "unknown"}).GetGinMode())
}
