package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/allisson/fieldsync/internal/app"
	"github.com/allisson/fieldsync/internal/config"
	"github.com/allisson/fieldsync/internal/http"
)

// RunAgent starts the full sync agent: the connectivity monitor, the sync
// coordinator, the local API server, and the metrics server when enabled.
// Blocks until receiving SIGINT/SIGTERM or encountering a fatal error. On
// shutdown the servers are stopped within the DBConnMaxLifetime timeout and
// the background loops drain via context cancellation.
func RunAgent(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting agent", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Get Metrics server from container
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	coordinator, err := container.SyncCoordinator()
	if err != nil {
		return fmt.Errorf("failed to initialize sync coordinator: %w", err)
	}

	monitor := container.ConnectivityMonitor()

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start servers and background loops in goroutines. The monitor and the
	// coordinator return the context error when cancelled, which is a normal
	// shutdown and not reported.
	serverErr := make(chan error, 4)
	go func() {
		if err := monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErr <- fmt.Errorf("connectivity monitor error: %w", err)
		}
	}()

	go func() {
		if err := coordinator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErr <- fmt.Errorf("sync coordinator error: %w", err)
		}
	}()

	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return shutdownServers(server, metricsServer, cfg, nil)
	case err := <-serverErr:
		// Attempt graceful shutdown if one component fails
		logger.Error("agent error, initiating shutdown", slog.Any("error", err))
		cancel()
		return shutdownServers(server, metricsServer, cfg, err)
	}
}

// shutdownServers stops the API and metrics servers within the configured
// timeout and joins any errors with the cause that triggered the shutdown.
func shutdownServers(server *http.Server, metricsServer *http.MetricsServer, cfg *config.Config, cause error) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
	defer shutdownCancel()

	var shutdownErrors []error
	if cause != nil {
		shutdownErrors = append(shutdownErrors, cause)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return errors.Join(shutdownErrors...)
	}
	return nil
}
