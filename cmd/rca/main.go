// Command rca is the root cause and remediation governance CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/config"
	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/rca"
	"github.com/steveyegge/rcagov/internal/redact"
	"github.com/steveyegge/rcagov/internal/storage"
	_ "github.com/steveyegge/rcagov/internal/storage/postgres"
	_ "github.com/steveyegge/rcagov/internal/storage/sqlite"
	"github.com/steveyegge/rcagov/internal/telemetry"
	"github.com/steveyegge/rcagov/internal/triggers"
)

var (
	cfg       *config.Config
	logger    *logging.Logger
	store     storage.Storage
	publisher events.Publisher
	svc       *rca.Service
	tel       *telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "rca",
	Short: "Root cause and remediation governance",
	Long: `rca records failures as root cause reports, tracks their corrective and
preventive actions, and gates handoffs while P0/P1 reports are unremediated.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// triggers validate only needs the file it is given.
		if cmd.Annotations["offline"] == "true" {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides storage.path)")
}

// setup loads configuration and opens the store and service.
func setup(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	dbPath, _ := cmd.Flags().GetString("db")

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	switch {
	case dbPath != "":
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = dbPath
	case cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == storage.DefaultConfig().Path:
		// No explicit path: use the project's database if there is one.
		if found, err := storage.DiscoverDatabase(); err == nil {
			cfg.Storage.Path = found
		}
	}

	logger, err = logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx := context.Background()

	// Installed before the service so its tracer comes from this provider.
	tel, err = telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if tel.Enabled() {
		logger.Info(ctx, "telemetry enabled",
			zap.String("endpoint", cfg.Telemetry.Endpoint),
			zap.String("protocol", cfg.Telemetry.Protocol))
	}

	store, err = storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	registry := triggers.Builtin()
	if cfg.Triggers.File != "" {
		registry, err = triggers.LoadFile(cfg.Triggers.File)
		if err != nil {
			return fmt.Errorf("failed to load triggers: %w", err)
		}
	}

	var redactor redact.Redactor = redact.Nop{}
	if cfg.Redaction.Enabled {
		gl, err := redact.NewGitleaks()
		if err != nil {
			return fmt.Errorf("failed to initialize redaction: %w", err)
		}
		redactor = gl
	}

	publisher, err = events.New(cfg.Events)
	if err != nil {
		// Lifecycle events are best-effort; the store is the system of record.
		logger.Warn(ctx, "event publisher unavailable, continuing without it",
			zap.String("backend", cfg.Events.Backend), zap.Error(err))
		publisher = events.Noop{}
	}

	svc, err = rca.NewService(&rca.Config{
		Store:     store,
		Triggers:  registry,
		Dedup:     cfg.Dedup,
		Redactor:  redactor,
		Publisher: publisher,
		Logger:    logger,
	})
	return err
}

func teardown() {
	if publisher != nil {
		_ = publisher.Close()
	}
	if store != nil {
		_ = store.Close()
	}
	if tel != nil {
		if err := tel.Shutdown(context.Background()); err != nil && logger != nil {
			logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
		tel = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		teardown()
		os.Exit(1)
	}
}
