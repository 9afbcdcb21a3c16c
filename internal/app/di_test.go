package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/fieldsync/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:                t.TempDir(),
		DBDriver:               "sqlite",
		DBMaxOpenConnections:   1,
		DBMaxIdleConnections:   1,
		DBConnMaxLifetime:      time.Minute,
		LogLevel:               "error",
		CaptureMaxPayloadBytes: 1024,
		CaptureAppendRetries:   1,
		RemoteEndpointURL:      "http://localhost:9090",
		RemoteTimeout:          time.Second,
		RemoteRequestsPerSec:   5,
		RemoteBurst:            5,
		ProbeInterval:          time.Second,
		ProbeDebounce:          2 * time.Second,
		SyncInterval:           time.Minute,
		SyncBatchSize:          50,
		SyncMaxAttempts:        8,
		SyncBackoffBase:        2 * time.Second,
		SyncBackoffCap:         5 * time.Minute,
		SyncRetention:          24 * time.Hour,
		ServerHost:             "127.0.0.1",
		ServerPort:             0,
		MetricsNamespace:       "fieldsync",
	}
}

func TestContainerConfig(t *testing.T) {
	cfg := testConfig(t)
	container := NewContainer(cfg)
	assert.Same(t, cfg, container.Config())
}

func TestContainerLoggerIsSingleton(t *testing.T) {
	container := NewContainer(testConfig(t))
	assert.Same(t, container.Logger(), container.Logger())
}

func TestContainerEventBusIsSingleton(t *testing.T) {
	container := NewContainer(testConfig(t))
	assert.Same(t, container.EventBus(), container.EventBus())
}

func TestContainerDeviceID(t *testing.T) {
	container := NewContainer(testConfig(t))

	deviceID, err := container.DeviceID()
	require.NoError(t, err)
	assert.NotEmpty(t, deviceID)

	again, err := container.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, deviceID, again)
}

func TestContainerDeviceIDOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.DeviceID = "truck-42"
	container := NewContainer(cfg)

	deviceID, err := container.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, "truck-42", deviceID)
}

func TestContainerUnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "mongodb"
	cfg.DBConnectionString = "mongodb://localhost"
	container := NewContainer(cfg)

	_, err := container.EnvelopeRepository()
	require.Error(t, err)

	// The error is sticky on repeated access.
	_, again := container.EnvelopeRepository()
	assert.Error(t, again)
}

func TestContainerMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = false
	container := NewContainer(cfg)

	provider, err := container.MetricsProvider()
	require.NoError(t, err)
	assert.Nil(t, provider)

	businessMetrics, err := container.BusinessMetrics()
	require.NoError(t, err)
	assert.NotNil(t, businessMetrics, "no-op recorder expected when metrics are disabled")

	metricsServer, err := container.MetricsServer()
	require.NoError(t, err)
	assert.Nil(t, metricsServer)
}

func TestContainerConnectivityMonitorIsSingleton(t *testing.T) {
	container := NewContainer(testConfig(t))
	assert.Same(t, container.ConnectivityMonitor(), container.ConnectivityMonitor())
}
