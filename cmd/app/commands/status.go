package commands

import (
	"context"
	"fmt"

	"github.com/allisson/fieldsync/internal/app"
	"github.com/allisson/fieldsync/internal/config"
)

// failedListLimit bounds the parked envelope listing in the CLI output.
const failedListLimit = 50

// RunStatus prints a point-in-time snapshot of the agent: device identity,
// connectivity state, pending queue depth and last sync time. With showFailed
// it also lists envelopes parked in terminal failure states.
func RunStatus(ctx context.Context, showFailed bool, io IOTuple) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	statusUseCase, err := container.StatusUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize status use case: %w", err)
	}

	status, err := statusUseCase.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	lastSync := "never"
	if status.LastSyncAt != nil {
		lastSync = status.LastSyncAt.Format("2006-01-02 15:04:05 MST")
	}

	_, _ = fmt.Fprintf(io.Writer, "Device ID:    %s\n", status.DeviceID)
	_, _ = fmt.Fprintf(io.Writer, "Connectivity: %s\n", status.Connectivity)
	_, _ = fmt.Fprintf(io.Writer, "Pending:      %d\n", status.PendingCount)
	_, _ = fmt.Fprintf(io.Writer, "Last sync:    %s\n", lastSync)

	if !showFailed {
		return nil
	}

	failed, err := statusUseCase.ListFailed(ctx, failedListLimit)
	if err != nil {
		return fmt.Errorf("failed to list failed envelopes: %w", err)
	}

	_, _ = fmt.Fprintf(io.Writer, "Failed:       %d\n", len(failed))
	for _, env := range failed {
		reason := ""
		if env.FailureReason != nil {
			reason = string(*env.FailureReason)
		}
		_, _ = fmt.Fprintf(io.Writer, "  %s  seq=%d  kind=%s  attempts=%d  reason=%s\n",
			env.ID, env.DeviceSequence, env.Kind, env.Attempts, reason)
	}

	return nil
}
