// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/fieldsync/internal/blobstore"
	captureHTTP "github.com/allisson/fieldsync/internal/capture/http"
	captureUsecase "github.com/allisson/fieldsync/internal/capture/usecase"
	"github.com/allisson/fieldsync/internal/config"
	"github.com/allisson/fieldsync/internal/connectivity"
	"github.com/allisson/fieldsync/internal/database"
	"github.com/allisson/fieldsync/internal/device"
	envelopeDomain "github.com/allisson/fieldsync/internal/envelope/domain"
	"github.com/allisson/fieldsync/internal/eventbus"
	"github.com/allisson/fieldsync/internal/http"
	"github.com/allisson/fieldsync/internal/metrics"
	queueRepository "github.com/allisson/fieldsync/internal/queue/repository"
	statusHTTP "github.com/allisson/fieldsync/internal/status/http"
	statusUsecase "github.com/allisson/fieldsync/internal/status/usecase"
	"github.com/allisson/fieldsync/internal/syncer/remote"
	syncerUsecase "github.com/allisson/fieldsync/internal/syncer/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB

	// Managers
	txManager database.TxManager

	// Device identity and envelope factory
	deviceID string
	factory  *envelopeDomain.Factory

	// Repositories and stores
	envelopeRepo queueRepository.EnvelopeRepository
	blobStore    *blobstore.Store

	// Event bus and connectivity
	bus     *eventbus.Bus
	monitor *connectivity.Monitor

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	queueMetrics    *metrics.QueueMetrics

	// Use Cases
	syncCoordinator syncerUsecase.UseCase
	captureUseCase  captureUsecase.CaptureUseCase
	statusUseCase   statusUsecase.StatusUseCase

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	deviceIDInit        sync.Once
	factoryInit         sync.Once
	envelopeRepoInit    sync.Once
	blobStoreInit       sync.Once
	busInit             sync.Once
	monitorInit         sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	queueMetricsInit    sync.Once
	syncCoordinatorInit sync.Once
	captureUseCaseInit  sync.Once
	statusUseCaseInit   sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// DeviceID returns the stable device identity.
func (c *Container) DeviceID() (string, error) {
	var err error
	c.deviceIDInit.Do(func() {
		c.deviceID, err = device.LoadOrCreateID(c.config.DataDir, c.config.DeviceID)
		if err != nil {
			c.initErrors["deviceID"] = err
		}
	})
	if err != nil {
		return "", err
	}
	if storedErr, exists := c.initErrors["deviceID"]; exists {
		return "", storedErr
	}
	return c.deviceID, nil
}

// Factory returns the envelope factory, seeded with the highest stored
// device sequence so sequences keep increasing across restarts.
func (c *Container) Factory() (*envelopeDomain.Factory, error) {
	var err error
	c.factoryInit.Do(func() {
		c.factory, err = c.initFactory()
		if err != nil {
			c.initErrors["factory"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["factory"]; exists {
		return nil, storedErr
	}
	return c.factory, nil
}

// EnvelopeRepository returns the durable queue store.
func (c *Container) EnvelopeRepository() (queueRepository.EnvelopeRepository, error) {
	var err error
	c.envelopeRepoInit.Do(func() {
		c.envelopeRepo, err = c.initEnvelopeRepository()
		if err != nil {
			c.initErrors["envelopeRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["envelopeRepo"]; exists {
		return nil, storedErr
	}
	return c.envelopeRepo, nil
}

// BlobStore returns the blob store for photo payload bodies.
func (c *Container) BlobStore() (*blobstore.Store, error) {
	var err error
	c.blobStoreInit.Do(func() {
		c.blobStore, err = blobstore.Open(context.Background(), c.config.BlobBucketURL, c.config.DataDir)
		if err != nil {
			c.initErrors["blobStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["blobStore"]; exists {
		return nil, storedErr
	}
	return c.blobStore, nil
}

// EventBus returns the in-process event bus.
func (c *Container) EventBus() *eventbus.Bus {
	c.busInit.Do(func() {
		c.bus = eventbus.NewBus(c.Logger())
	})
	return c.bus
}

// ConnectivityMonitor returns the connectivity monitor.
func (c *Container) ConnectivityMonitor() *connectivity.Monitor {
	c.monitorInit.Do(func() {
		probeURL := c.config.ProbeURL
		if probeURL == "" {
			probeURL = c.config.RemoteEndpointURL
		}

		prober := connectivity.NewHTTPProber(probeURL, c.config.RemoteTimeout)
		c.monitor = connectivity.NewMonitor(
			connectivity.Config{
				ProbeInterval: c.config.ProbeInterval,
				Debounce:      c.config.ProbeDebounce,
			},
			prober,
			c.EventBus(),
			c.Logger(),
		)
	})
	return c.monitor
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op
// implementation is returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// QueueMetrics returns the queue health metrics, or nil when metrics are disabled.
func (c *Container) QueueMetrics() (*metrics.QueueMetrics, error) {
	var err error
	c.queueMetricsInit.Do(func() {
		c.queueMetrics, err = c.initQueueMetrics()
		if err != nil {
			c.initErrors["queueMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["queueMetrics"]; exists {
		return nil, storedErr
	}
	return c.queueMetrics, nil
}

// SyncCoordinator returns the sync coordinator.
func (c *Container) SyncCoordinator() (syncerUsecase.UseCase, error) {
	var err error
	c.syncCoordinatorInit.Do(func() {
		c.syncCoordinator, err = c.initSyncCoordinator()
		if err != nil {
			c.initErrors["syncCoordinator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncCoordinator"]; exists {
		return nil, storedErr
	}
	return c.syncCoordinator, nil
}

// CaptureUseCase returns the capture use case wrapped with metrics.
func (c *Container) CaptureUseCase() (captureUsecase.CaptureUseCase, error) {
	var err error
	c.captureUseCaseInit.Do(func() {
		c.captureUseCase, err = c.initCaptureUseCase()
		if err != nil {
			c.initErrors["captureUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["captureUseCase"]; exists {
		return nil, storedErr
	}
	return c.captureUseCase, nil
}

// StatusUseCase returns the observer surface use case.
func (c *Container) StatusUseCase() (statusUsecase.StatusUseCase, error) {
	var err error
	c.statusUseCaseInit.Do(func() {
		c.statusUseCase, err = c.initStatusUseCase()
		if err != nil {
			c.initErrors["statusUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["statusUseCase"]; exists {
		return nil, storedErr
	}
	return c.statusUseCase, nil
}

// HTTPServer returns the agent API server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics
// are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.blobStore != nil {
		if err := c.blobStore.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("blob store close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection. The data directory
// is created first so a fresh device can open its sqlite database.
func (c *Container) initDB() (*sql.DB, error) {
	if err := os.MkdirAll(c.config.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.QueueDSN(),
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initEnvelopeRepository creates the queue store for the configured driver.
func (c *Container) initEnvelopeRepository() (queueRepository.EnvelopeRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for envelope repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return queueRepository.NewSQLiteEnvelopeRepository(db), nil
	case "postgres":
		return queueRepository.NewPostgreSQLEnvelopeRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initFactory creates the envelope factory seeded from the store.
func (c *Container) initFactory() (*envelopeDomain.Factory, error) {
	deviceID, err := c.DeviceID()
	if err != nil {
		return nil, fmt.Errorf("failed to get device id for factory: %w", err)
	}

	envelopeRepo, err := c.EnvelopeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope repository for factory: %w", err)
	}

	lastSequence, err := envelopeRepo.MaxDeviceSequence(context.Background(), deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last device sequence: %w", err)
	}

	return envelopeDomain.NewFactory(deviceID, lastSequence, c.config.CaptureMaxPayloadBytes), nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initQueueMetrics creates the queue metrics and wires them to the event bus.
func (c *Container) initQueueMetrics() (*metrics.QueueMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for queue metrics: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	envelopeRepo, err := c.EnvelopeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope repository for queue metrics: %w", err)
	}

	queueMetrics, err := metrics.NewQueueMetrics(provider.MeterProvider(), c.config.MetricsNamespace, envelopeRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue metrics: %w", err)
	}

	bus := c.EventBus()
	bus.Subscribe(eventbus.TopicSyncCompleted, func(event any) {
		if completed, ok := event.(syncerUsecase.CompletedEvent); ok {
			queueMetrics.RecordCycle(context.Background(), completed.Synced)
		}
	})
	bus.Subscribe(eventbus.TopicSyncFailed, func(event any) {
		if failure, ok := event.(syncerUsecase.FailureEvent); ok {
			queueMetrics.RecordParked(context.Background(), string(failure.Reason))
		}
	})

	return queueMetrics, nil
}

// initSyncCoordinator creates the sync coordinator with all its dependencies.
func (c *Container) initSyncCoordinator() (syncerUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for sync coordinator: %w", err)
	}

	envelopeRepo, err := c.EnvelopeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope repository for sync coordinator: %w", err)
	}

	remoteClient := remote.NewHTTPClient(remote.Config{
		BaseURL:        c.config.RemoteEndpointURL,
		Timeout:        c.config.RemoteTimeout,
		RequestsPerSec: c.config.RemoteRequestsPerSec,
		Burst:          c.config.RemoteBurst,
	})

	useCaseConfig := syncerUsecase.Config{
		Interval:    c.config.SyncInterval,
		BatchSize:   c.config.SyncBatchSize,
		MaxAttempts: c.config.SyncMaxAttempts,
		BackoffBase: c.config.SyncBackoffBase,
		BackoffCap:  c.config.SyncBackoffCap,
		Retention:   c.config.SyncRetention,
	}

	return syncerUsecase.NewSyncCoordinator(
		useCaseConfig,
		txManager,
		envelopeRepo,
		remoteClient,
		c.ConnectivityMonitor(),
		c.EventBus(),
		c.Logger(),
	), nil
}

// initCaptureUseCase creates the capture use case with metrics decoration.
func (c *Container) initCaptureUseCase() (captureUsecase.CaptureUseCase, error) {
	factory, err := c.Factory()
	if err != nil {
		return nil, fmt.Errorf("failed to get factory for capture use case: %w", err)
	}

	envelopeRepo, err := c.EnvelopeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope repository for capture use case: %w", err)
	}

	blobStore, err := c.BlobStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob store for capture use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for capture use case: %w", err)
	}

	useCase := captureUsecase.NewCaptureUseCase(
		factory,
		envelopeRepo,
		blobStore,
		c.config.CaptureAppendRetries,
		c.Logger(),
	)

	return captureUsecase.NewCaptureUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initStatusUseCase creates the observer surface use case.
func (c *Container) initStatusUseCase() (statusUsecase.StatusUseCase, error) {
	deviceID, err := c.DeviceID()
	if err != nil {
		return nil, fmt.Errorf("failed to get device id for status use case: %w", err)
	}

	envelopeRepo, err := c.EnvelopeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope repository for status use case: %w", err)
	}

	syncCoordinator, err := c.SyncCoordinator()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync coordinator for status use case: %w", err)
	}

	return statusUsecase.NewStatusUseCase(
		deviceID,
		envelopeRepo,
		syncCoordinator,
		c.ConnectivityMonitor(),
	), nil
}

// initHTTPServer creates the agent API server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	captureUseCase, err := c.CaptureUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get capture use case for http server: %w", err)
	}

	statusUseCase, err := c.StatusUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get status use case for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	// Queue metrics register their observable gauge on first access.
	if _, err := c.QueueMetrics(); err != nil {
		return nil, fmt.Errorf("failed to get queue metrics for http server: %w", err)
	}

	serverConfig := http.ServerConfig{
		Host:             c.config.ServerHost,
		Port:             c.config.ServerPort,
		CORSEnabled:      c.config.CORSEnabled,
		CORSAllowOrigins: c.config.CORSAllowOrigins,
		MetricsNamespace: c.config.MetricsNamespace,
	}

	captureHandler := captureHTTP.NewCaptureHandler(
		captureUseCase,
		int64(c.config.CaptureMaxPayloadBytes),
		logger,
	)
	statusHandler := statusHTTP.NewStatusHandler(statusUseCase, logger)

	if provider != nil {
		return http.NewServer(serverConfig, captureHandler, statusHandler, provider.MeterProvider(), db, logger), nil
	}
	return http.NewServer(serverConfig, captureHandler, statusHandler, nil, db, logger), nil
}

// initMetricsServer creates the Prometheus metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
	), nil
}
