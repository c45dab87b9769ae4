package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/embergate/internal/config"
	"github.com/nextlevelbuilder/embergate/internal/core"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway, debounce worker, and push dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("serve.config_load_failed", "error", err)
		os.Exit(1)
	}

	if cfg.Storage.Backend == "postgres" {
		if err := checkSchemaOrAutoUpgrade(cfg.Storage.PostgresDSN); err != nil {
			slog.Error("serve.schema_check_failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := core.Boot(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("serve.starting", "host", cfg.Gateway.Host, "port", cfg.Gateway.Port)
	return svc.Run(ctx)
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
