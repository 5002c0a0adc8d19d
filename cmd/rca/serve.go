package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/rcagov/internal/config"
	rcahttp "github.com/steveyegge/rcagov/internal/http"
	"github.com/steveyegge/rcagov/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the RCA HTTP API",
	Long: `Run the RCA HTTP API. When retention is enabled the server also prunes
audit events on the configured interval.

The server stops on SIGINT or SIGTERM, giving in-flight requests up to
server.shutdown_timeout to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		srv, err := rcahttp.NewServer(svc, logger, &rcahttp.Config{
			Addr:           cfg.Server.Addr,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if cfg.Retention.Enabled && cfg.Storage.Backend == "sqlite" {
			// One pruner per database file.
			lockPath, err := storage.AcquireInstanceLock(cfg.Storage.Path, "rca-serve")
			if err != nil {
				logger.Warn(ctx, "event retention disabled for this instance", zap.Error(err))
				cfg.Retention.Enabled = false
			} else {
				defer func() { _ = storage.ReleaseInstanceLock(lockPath) }()
			}
		}
		if cfg.Retention.Enabled {
			g.Go(func() error {
				runRetention(gctx, cfg.Retention)
				return nil
			})
		}
		return g.Wait()
	},
}

// runRetention prunes audit events every IntervalHours until ctx is done.
// Failures are logged and retried on the next tick.
func runRetention(ctx context.Context, rc config.RetentionConfig) {
	logger.Info(ctx, "event retention enabled", zap.String("config", rc.String()))

	ticker := time.NewTicker(time.Duration(rc.IntervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.PruneEvents(ctx, rc.EventDays, rc.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error(ctx, "event retention run failed", zap.Error(err))
				continue
			}
			logger.Info(ctx, "event retention run complete", zap.Int("deleted", deleted))
		}
	}
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
