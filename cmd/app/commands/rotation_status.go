package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/estatekit/fieldcrypt/internal/app"
	"github.com/estatekit/fieldcrypt/internal/classify"
	"github.com/estatekit/fieldcrypt/internal/config"
	cryptoUseCase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"
)

// RunRotationStatus reports the lifecycle position of one tier, including
// re-wrap progress while a rotation is draining. Output format is "text" or
// "json".
func RunRotationStatus(ctx context.Context, writer io.Writer, tierStr, format string) error {
	tier, err := classify.ParseTier(tierStr)
	if err != nil {
		return err
	}

	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	defer closeContainer(container, logger)

	lifecycle, err := container.KeyLifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize key lifecycle use case: %w", err)
	}

	if _, err := container.KekRing(); err != nil {
		return fmt.Errorf("failed to load kek ring: %w", err)
	}

	status, err := lifecycle.Status(ctx, tier)
	if err != nil {
		return fmt.Errorf("failed to get rotation status for tier %s: %w", tier, err)
	}

	if format == "json" {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	outputStatusText(writer, status)
	return nil
}

// outputStatusText renders a rotation status in human-readable form.
func outputStatusText(writer io.Writer, status *cryptoUseCase.RotationStatus) {
	_, _ = fmt.Fprintf(writer, "Tier:           %s\n", status.Tier)
	_, _ = fmt.Fprintf(writer, "Active KEK:     %s (version %d)\n", status.ActiveKeyID, status.ActiveVersion)
	_, _ = fmt.Fprintf(writer, "Active Since:   %s\n", status.ActiveSince.Format("2006-01-02 15:04:05"))

	if !status.Rotating {
		_, _ = fmt.Fprintf(writer, "Rotation:       none in progress\n")
		return
	}

	_, _ = fmt.Fprintf(writer, "Rotation:       in progress\n")
	if status.RotatingKeyID != nil {
		_, _ = fmt.Fprintf(writer, "Draining KEK:   %s\n", *status.RotatingKeyID)
	}
	_, _ = fmt.Fprintf(writer, "Re-wrapped:     %d\n", status.RewrappedValues)
	_, _ = fmt.Fprintf(writer, "Remaining:      %d\n", status.RemainingValues)
}
