package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estatekit/fieldcrypt/internal/app"
	"github.com/estatekit/fieldcrypt/internal/classify"
	"github.com/estatekit/fieldcrypt/internal/config"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// RunRotateKek starts an online rotation for one tier. A new Active KEK is
// installed and the previous one becomes RotatingOut; existing ciphertext
// stays readable while the re-wrap sweep drains it. Fails with a clear error
// when the tier's previous rotation has not finished draining.
func RunRotateKek(ctx context.Context, tierStr, algorithmStr string) error {
	tier, err := classify.ParseTier(tierStr)
	if err != nil {
		return err
	}

	algorithm, err := cryptoDomain.ParseAlgorithm(algorithmStr)
	if err != nil {
		return err
	}

	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("rotating KEK",
		slog.String("tier", string(tier)),
		slog.String("algorithm", string(algorithm)),
	)

	defer closeContainer(container, logger)

	masterKeyChain, err := container.MasterKeyChain()
	if err != nil {
		return fmt.Errorf("failed to load master key chain: %w", err)
	}

	lifecycle, err := container.KeyLifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize key lifecycle use case: %w", err)
	}

	// Rotation mutates the in-process ring, so the persisted KEKs must be
	// loaded first.
	if _, err := container.KekRing(); err != nil {
		return fmt.Errorf("failed to load kek ring: %w", err)
	}

	if err := lifecycle.Rotate(ctx, masterKeyChain, tier, algorithm); err != nil {
		return fmt.Errorf("failed to rotate KEK for tier %s: %w", tier, err)
	}

	logger.Info("KEK rotation started",
		slog.String("tier", string(tier)),
		slog.String("algorithm", string(algorithm)),
		slog.String("master_key_id", masterKeyChain.ActiveMasterKeyID()),
	)

	return nil
}
