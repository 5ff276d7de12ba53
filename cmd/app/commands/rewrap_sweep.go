package commands

import (
	"context"
	"fmt"

	"github.com/estatekit/fieldcrypt/internal/app"
	"github.com/estatekit/fieldcrypt/internal/config"
)

// RunRewrapSweep runs a single re-wrap pass over every tier with a rotation
// in progress. Progress is checkpointed per batch, so an interrupted run
// resumes from where it stopped. The server runs the same sweep on a timer;
// this command exists to drain a rotation on demand.
func RunRewrapSweep(ctx context.Context) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting re-wrap sweep pass")

	defer closeContainer(container, logger)

	sweep, err := container.RewrapSweepUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize re-wrap sweep: %w", err)
	}

	if err := sweep.SweepOnce(ctx); err != nil {
		return fmt.Errorf("sweep pass failed: %w", err)
	}

	logger.Info("re-wrap sweep pass completed")
	return nil
}
