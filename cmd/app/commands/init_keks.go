package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estatekit/fieldcrypt/internal/app"
	"github.com/estatekit/fieldcrypt/internal/config"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// RunInitKeks creates an Active KEK for every configured tier that has none.
// Idempotent; safe to run on every deploy.
//
// Requirements: database must be migrated, MASTER_KEYS and
// ACTIVE_MASTER_KEY_ID must be set.
func RunInitKeks(ctx context.Context, algorithmStr string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("initializing KEKs", slog.String("algorithm", algorithmStr))

	defer closeContainer(container, logger)

	algorithm, err := cryptoDomain.ParseAlgorithm(algorithmStr)
	if err != nil {
		return err
	}

	masterKeyChain, err := container.MasterKeyChain()
	if err != nil {
		return fmt.Errorf("failed to load master key chain: %w", err)
	}

	lifecycle, err := container.KeyLifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize key lifecycle use case: %w", err)
	}

	if err := lifecycle.Init(ctx, masterKeyChain, algorithm); err != nil {
		return fmt.Errorf("failed to initialize KEKs: %w", err)
	}

	logger.Info("KEKs initialized",
		slog.String("algorithm", string(algorithm)),
		slog.String("master_key_id", masterKeyChain.ActiveMasterKeyID()),
	)

	return nil
}
