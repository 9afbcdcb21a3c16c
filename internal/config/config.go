// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// DataDir is the directory holding the queue database, device identity and blobs.
	DataDir string
	// DeviceID overrides the persisted device identity when set.
	DeviceID string

	// DBDriver is the database driver to use ("sqlite" or "postgres").
	DBDriver string
	// DBConnectionString is the connection string for the database.
	// Empty means a sqlite database under DataDir.
	DBConnectionString string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// CaptureMaxPayloadBytes is the maximum accepted action payload size.
	CaptureMaxPayloadBytes int
	// CaptureAppendRetries is how many times a failed durable append is retried
	// inline before the envelope is parked in the holdback buffer.
	CaptureAppendRetries int

	// BlobBucketURL is the gocloud.dev bucket URL for photo payload bodies.
	// Empty means a fileblob bucket under DataDir.
	BlobBucketURL string

	// RemoteEndpointURL is the base URL of the sync endpoint.
	RemoteEndpointURL string
	// RemoteTimeout is the per-batch HTTP timeout.
	RemoteTimeout time.Duration
	// RemoteRequestsPerSec caps the outgoing batch request rate.
	RemoteRequestsPerSec float64
	// RemoteBurst is the burst size for the outgoing request limiter.
	RemoteBurst int

	// ProbeURL is the reachability probe target. Empty means RemoteEndpointURL.
	ProbeURL string
	// ProbeInterval is how often the connectivity monitor probes reachability.
	ProbeInterval time.Duration
	// ProbeDebounce is how long a reachability change must hold before the
	// transition event fires.
	ProbeDebounce time.Duration

	// SyncInterval is the periodic drain interval while online.
	SyncInterval time.Duration
	// SyncBatchSize is the maximum number of envelopes claimed per drain cycle.
	SyncBatchSize int
	// SyncMaxAttempts is the delivery attempt cap before an envelope is
	// parked as exhausted.
	SyncMaxAttempts int
	// SyncBackoffBase is the base delay for retry backoff.
	SyncBackoffBase time.Duration
	// SyncBackoffCap is the upper bound for retry backoff.
	SyncBackoffCap time.Duration
	// SyncRetention is how long synced envelopes are kept before purge.
	SyncRetention time.Duration

	// ServerHost is the host address the status API binds to.
	ServerHost string
	// ServerPort is the port number the status API listens on.
	ServerPort int

	// CORSEnabled indicates whether CORS is enabled on the status API.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Device
		DataDir:  env.GetString("DATA_DIR", "./fieldsync-data"),
		DeviceID: env.GetString("DEVICE_ID", ""),

		// Database configuration
		DBDriver:             env.GetString("DB_DRIVER", "sqlite"),
		DBConnectionString:   env.GetString("DB_CONNECTION_STRING", ""),
		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 1),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 1),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME", 5, time.Minute),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Capture
		CaptureMaxPayloadBytes: env.GetInt("CAPTURE_MAX_PAYLOAD_BYTES", 256*1024),
		CaptureAppendRetries:   env.GetInt("CAPTURE_APPEND_RETRIES", 3),

		// Blob storage
		BlobBucketURL: env.GetString("BLOB_BUCKET_URL", ""),

		// Remote endpoint
		RemoteEndpointURL:    env.GetString("REMOTE_ENDPOINT_URL", "http://localhost:9090"),
		RemoteTimeout:        env.GetDuration("REMOTE_TIMEOUT_SECONDS", 30, time.Second),
		RemoteRequestsPerSec: env.GetFloat64("REMOTE_REQUESTS_PER_SEC", 5.0),
		RemoteBurst:          env.GetInt("REMOTE_BURST", 5),

		// Connectivity
		ProbeURL:      env.GetString("PROBE_URL", ""),
		ProbeInterval: env.GetDuration("PROBE_INTERVAL_SECONDS", 5, time.Second),
		ProbeDebounce: env.GetDuration("PROBE_DEBOUNCE_SECONDS", 2, time.Second),

		// Sync
		SyncInterval:    env.GetDuration("SYNC_INTERVAL_SECONDS", 60, time.Second),
		SyncBatchSize:   env.GetInt("SYNC_BATCH_SIZE", 50),
		SyncMaxAttempts: env.GetInt("SYNC_MAX_ATTEMPTS", 8),
		SyncBackoffBase: env.GetDuration("SYNC_BACKOFF_BASE_SECONDS", 2, time.Second),
		SyncBackoffCap:  env.GetDuration("SYNC_BACKOFF_CAP_SECONDS", 300, time.Second),
		SyncRetention:   env.GetDuration("SYNC_RETENTION_HOURS", 24, time.Hour),

		// Status API
		ServerHost: env.GetString("SERVER_HOST", "127.0.0.1"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "fieldsync"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	default:
		return "release"
	}
}

// QueueDSN returns the effective database connection string. For sqlite an
// empty DB_CONNECTION_STRING resolves to a database file under DataDir.
func (c *Config) QueueDSN() string {
	if c.DBConnectionString != "" {
		return c.DBConnectionString
	}
	return "file:" + filepath.Join(c.DataDir, "queue.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}
