package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/estatekit/fieldcrypt/internal/app"
	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	"github.com/estatekit/fieldcrypt/internal/config"
)

// RunVerifyAuditEntries re-verifies the HMAC signature of every audit entry
// against the KEK-derived signing keys. Entries signed by a key missing from
// the ring are reported separately from entries whose signature does not
// match. Returns a non-nil error when any tampered entry is found, so the
// process exit code can drive alerting.
func RunVerifyAuditEntries(ctx context.Context, writer io.Writer, batchSize int, format string) error {
	if batchSize < 0 {
		return fmt.Errorf("batch-size must not be negative")
	}

	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("verifying audit entries", slog.Int("batch_size", batchSize))

	defer closeContainer(container, logger)

	verifier, err := container.VerifierUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize audit verifier: %w", err)
	}

	report, err := verifier.Verify(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to verify audit entries: %w", err)
	}

	if format == "json" {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputVerifyText(writer, report)
	}

	logger.Info("verification completed",
		slog.Uint64("checked", report.Checked),
		slog.Int("invalid", len(report.Invalid)),
		slog.Int("unknown_key", len(report.UnknownKey)),
	)

	if len(report.Invalid) > 0 {
		return fmt.Errorf("integrity check failed: %d invalid signature(s)", len(report.Invalid))
	}

	return nil
}

// outputVerifyText renders a verification report in human-readable form.
func outputVerifyText(writer io.Writer, report *auditUsecase.VerifyReport) {
	_, _ = fmt.Fprintf(writer, "Audit Entry Integrity Verification\n")
	_, _ = fmt.Fprintf(writer, "==================================\n\n")
	_, _ = fmt.Fprintf(writer, "Checked:      %d\n", report.Checked)
	_, _ = fmt.Fprintf(writer, "Invalid:      %d\n", len(report.Invalid))
	_, _ = fmt.Fprintf(writer, "Unknown Key:  %d\n", len(report.UnknownKey))

	if len(report.Invalid) > 0 {
		_, _ = fmt.Fprintf(writer, "\nEntries with invalid signatures:\n")
		for _, id := range report.Invalid {
			_, _ = fmt.Fprintf(writer, "  %s\n", id)
		}
	}

	if len(report.UnknownKey) > 0 {
		_, _ = fmt.Fprintf(writer, "\nEntries signed by an unknown key:\n")
		for _, id := range report.UnknownKey {
			_, _ = fmt.Fprintf(writer, "  %s\n", id)
		}
	}

	if len(report.Invalid) == 0 && len(report.UnknownKey) == 0 {
		_, _ = fmt.Fprintf(writer, "\nAll audit entries verified successfully.\n")
	}
}
