// Package commands implements the CLI entry points for the service.
package commands

import (
	"context"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"

	"github.com/estatekit/fieldcrypt/internal/app"
)

func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("container shutdown failed", slog.Any("error", err))
	}
}

func closeMigrate(m *migrate.Migrate, logger *slog.Logger) {
	sourceErr, dbErr := m.Close()
	if sourceErr != nil || dbErr != nil {
		logger.Error(
			"migrate close failed",
			slog.Any("source_error", sourceErr),
			slog.Any("database_error", dbErr),
		)
	}
}
