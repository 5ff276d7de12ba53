package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estatekit/fieldcrypt/internal/app"
	"github.com/estatekit/fieldcrypt/internal/classify"
	"github.com/estatekit/fieldcrypt/internal/config"
)

// RunRetireKek completes a drained rotation for one tier: the RotatingOut
// KEK with zero remaining ciphertext references becomes Retired. Fails while
// any value is still wrapped under the old KEK; run the sweep first.
func RunRetireKek(ctx context.Context, tierStr string) error {
	tier, err := classify.ParseTier(tierStr)
	if err != nil {
		return err
	}

	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("retiring KEK", slog.String("tier", string(tier)))

	defer closeContainer(container, logger)

	lifecycle, err := container.KeyLifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize key lifecycle use case: %w", err)
	}

	if _, err := container.KekRing(); err != nil {
		return fmt.Errorf("failed to load kek ring: %w", err)
	}

	if err := lifecycle.Retire(ctx, tier); err != nil {
		return fmt.Errorf("failed to retire KEK for tier %s: %w", tier, err)
	}

	logger.Info("KEK retired", slog.String("tier", string(tier)))

	return nil
}
