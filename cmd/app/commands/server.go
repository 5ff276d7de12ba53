package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatekit/fieldcrypt/internal/app"
	"github.com/estatekit/fieldcrypt/internal/config"
)

const shutdownTimeout = 30 * time.Second

// RunServer starts the operator HTTP server together with the rotation
// scheduler and the re-wrap sweep. Blocks until SIGINT/SIGTERM or a fatal
// server error, then shuts everything down gracefully.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	sweep, err := container.RewrapSweepUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize re-wrap sweep: %w", err)
	}

	scheduler, err := container.RotationSchedulerUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize rotation scheduler: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// The sweep and scheduler loops exit with ctx.Err() on shutdown, which
	// is not a failure.
	go func() {
		if err := sweep.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("re-wrap sweep stopped", slog.Any("error", err))
		}
	}()
	go func() {
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("rotation scheduler stopped", slog.Any("error", err))
		}
	}()

	var secondary shutdowner
	if metricsServer != nil {
		secondary = metricsServer
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return shutdownServers(server, secondary, nil)
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		cancel()
		return shutdownServers(server, secondary, err)
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownServers stops the API and metrics servers within shutdownTimeout,
// combining any shutdown failures with the cause that triggered them.
func shutdownServers(server, metricsServer shutdowner, cause error) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErrors []error
	if cause != nil {
		shutdownErrors = append(shutdownErrors, cause)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}
