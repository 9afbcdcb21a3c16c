package commands

import (
	"context"
	"fmt"

	"github.com/allisson/fieldsync/internal/app"
	"github.com/allisson/fieldsync/internal/config"
	"github.com/allisson/fieldsync/internal/envelope/domain"
)

// RunRecordAction records one action into the durable queue from the command
// line and prints the assigned envelope id.
func RunRecordAction(ctx context.Context, kind, payload string, io IOTuple) error {
	actionKind := domain.ActionKind(kind)
	if !actionKind.Valid() {
		return fmt.Errorf("invalid action kind: %s (valid options: %v)", kind, domain.Kinds)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	captureUseCase, err := container.CaptureUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize capture use case: %w", err)
	}

	id, err := captureUseCase.RecordAction(ctx, actionKind, []byte(payload))
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	_, _ = fmt.Fprintf(io.Writer, "Recorded envelope: %s\n", id)
	return nil
}
