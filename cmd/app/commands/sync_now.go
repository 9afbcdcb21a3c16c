package commands

import (
	"context"
	"fmt"

	"github.com/allisson/fieldsync/internal/app"
	"github.com/allisson/fieldsync/internal/config"
)

// RunSyncNow runs one drain cycle against the remote endpoint and prints the
// resulting queue depth. The connectivity monitor is bypassed so the command
// can be used to verify reachability by hand.
func RunSyncNow(ctx context.Context, io IOTuple) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	coordinator, err := container.SyncCoordinator()
	if err != nil {
		return fmt.Errorf("failed to initialize sync coordinator: %w", err)
	}

	if err := coordinator.SyncNow(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	envelopeRepo, err := container.EnvelopeRepository()
	if err != nil {
		return fmt.Errorf("failed to get envelope repository: %w", err)
	}

	pending, err := envelopeRepo.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending envelopes: %w", err)
	}

	_, _ = fmt.Fprintf(io.Writer, "Sync completed. Pending envelopes: %d\n", pending)
	return nil
}
