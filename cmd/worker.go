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

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the debounce and push worker without the WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("worker.config_load_failed", "error", err)
		os.Exit(1)
	}

	if cfg.Storage.Backend == "postgres" {
		if err := checkSchemaOrAutoUpgrade(cfg.Storage.PostgresDSN); err != nil {
			slog.Error("worker.schema_check_failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := core.Boot(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("worker.starting")
	return svc.RunWorker(ctx)
}
