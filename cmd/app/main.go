// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/estatekit/fieldcrypt/cmd/app/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "fieldcrypt",
		Usage:   "Field-level encryption and key lifecycle service",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the operator HTTP server with the rotation scheduler and re-wrap sweep",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "create-master-key",
				Usage: "Generate a new KMS-protected master key for envelope encryption",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "id",
						Aliases: []string{"i"},
						Value:   "",
						Usage:   "Master key ID (e.g., prod-master-key-2026)",
					},
					&cli.StringFlag{
						Name:     "kms-provider",
						Required: true,
						Usage:    "KMS provider (gcpkms, awskms, azurekeyvault, or localsecrets for development)",
					},
					&cli.StringFlag{
						Name:     "kms-key-uri",
						Required: true,
						Usage:    "KMS key URI used to encrypt the master key",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunCreateMasterKey(
						ctx,
						os.Stdout,
						cmd.String("id"),
						cmd.String("kms-provider"),
						cmd.String("kms-key-uri"),
					)
				},
			},
			{
				Name:  "init-keks",
				Usage: "Create an Active KEK for every configured tier that has none",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "algorithm",
						Aliases: []string{"alg"},
						Value:   "aes-gcm",
						Usage:   "Encryption algorithm to use (aes-gcm or chacha20-poly1305)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunInitKeks(ctx, cmd.String("algorithm"))
				},
			},
			{
				Name:  "rotate-kek",
				Usage: "Start an online KEK rotation for one tier",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tier",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Sensitivity tier to rotate (critical, sensitive, or internal)",
					},
					&cli.StringFlag{
						Name:    "algorithm",
						Aliases: []string{"alg"},
						Value:   "aes-gcm",
						Usage:   "Encryption algorithm for the new KEK (aes-gcm or chacha20-poly1305)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRotateKek(ctx, cmd.String("tier"), cmd.String("algorithm"))
				},
			},
			{
				Name:  "retire-kek",
				Usage: "Retire a tier's drained rotating-out KEK",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tier",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Sensitivity tier to retire (critical, sensitive, or internal)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRetireKek(ctx, cmd.String("tier"))
				},
			},
			{
				Name:  "rotation-status",
				Usage: "Show the key lifecycle position of one tier",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tier",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Sensitivity tier to inspect (critical, sensitive, or internal)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRotationStatus(
						ctx,
						os.Stdout,
						cmd.String("tier"),
						cmd.String("format"),
					)
				},
			},
			{
				Name:  "rewrap-sweep",
				Usage: "Run a single re-wrap pass over every tier with a rotation in progress",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRewrapSweep(ctx)
				},
			},
			{
				Name:  "verify-audit-entries",
				Usage: "Re-verify the HMAC signature of every audit entry",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "batch-size",
						Aliases: []string{"b"},
						Value:   0,
						Usage:   "Entries fetched per batch (0 uses the default)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunVerifyAuditEntries(
						ctx,
						os.Stdout,
						cmd.Int("batch-size"),
						cmd.String("format"),
					)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
