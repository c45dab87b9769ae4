package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/embergate/internal/config"
	"github.com/nextlevelbuilder/embergate/internal/upgrade"
)

const dialTimeout = 3 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("embergate doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Storage:")
	fmt.Printf("    %-12s %s\n", "Backend:", orDefault(cfg.Storage.Backend, "memory"))
	if cfg.Storage.Backend == "postgres" {
		checkPostgres(cfg.Storage.PostgresDSN)
	}

	fmt.Println()
	fmt.Println("  Broker:")
	fmt.Printf("    %-12s %s\n", "Backend:", orDefault(cfg.Broker.Backend, "memory"))
	if cfg.Broker.Backend == "amqp" {
		checkAMQP(cfg.Broker.AMQPURL)
	}

	fmt.Println()
	fmt.Println("  Presence:")
	fmt.Printf("    %-12s %s\n", "Backend:", orDefault(cfg.Presence.Backend, "memory"))
	if cfg.Presence.Backend == "redis" {
		checkRedis(cfg.Presence.RedisURL)
	}

	fmt.Println()
	fmt.Println("  Push transports:")
	checkToggle("APN", cfg.Push.APN.Enabled)
	checkToggle("FCM", cfg.Push.FCM.Enabled)
	checkToggle("Web Push", cfg.Push.WebPush.Enabled)

	fmt.Println()
	fmt.Println("  Telemetry:")
	checkToggle("OpenTelemetry traces", cfg.Telemetry.Enabled)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkPostgres(dsn string) {
	if dsn == "" {
		fmt.Printf("    %-12s NOT CONFIGURED (set EMBERGATE_POSTGRES_DSN)\n", "Status:")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}

	s, err := upgrade.CheckSchema(db)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	switch {
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY — run: embergate migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (upgrade needed — run: embergate upgrade)\n", "Schema:", s.CurrentVersion)
	}

	pending, err := upgrade.PendingHooks(context.Background(), db)
	if err == nil && len(pending) > 0 {
		fmt.Printf("    %-12s %d pending\n", "Data hooks:", len(pending))
	} else if err == nil {
		fmt.Printf("    %-12s all applied\n", "Data hooks:")
	}
}

func checkAMQP(url string) {
	if url == "" {
		fmt.Printf("    %-12s NOT CONFIGURED (set EMBERGATE_BROKER_AMQP_URL)\n", "Status:")
		return
	}
	fmt.Printf("    %-12s configured\n", "Status:")
}

func checkRedis(url string) {
	if url == "" {
		fmt.Printf("    %-12s NOT CONFIGURED (set EMBERGATE_REDIS_URL)\n", "Status:")
		return
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		fmt.Printf("    %-12s INVALID URL (%s)\n", "Status:", err)
		return
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s OK\n", "Status:")
}

func checkToggle(name string, enabled bool) {
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
