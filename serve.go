package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskmaster/syncserver/internal/httpapi"
	"github.com/taskmaster/syncserver/internal/serverconfig"
	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/sweeper"
	"github.com/taskmaster/syncserver/internal/syncengine"
	"github.com/taskmaster/syncserver/internal/throttle"
)

// pidFileName is the daemon PID-lock path, relative to the database's
// directory so multiple servers pointed at different databases don't
// collide.
const pidFileName = "taskserver.pid"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync HTTP server",
		Long:  "Starts the push/pull sync HTTP server, the background tombstone sweeper, and blocks until shutdown.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	cfg := cc.Cfg

	cleanup, err := writePIDFile(filepath.Join(filepath.Dir(cfg.Database.Path), pidFileName))
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer cleanup()

	st, err := store.Open(cmd.Context(), cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("serve: opening store: %w", err)
	}
	defer st.Close()

	retentionDays := cfg.Tombstone.RetentionDays
	engine := syncengine.New(st, logger, time.Duration(retentionDays)*24*time.Hour)

	limiter := throttle.New(cfg.Throttle, logger)
	tokens := httpapi.NewTokenStore()
	srv := httpapi.New(engine, st, tokens, tokens, limiter, logger)

	router := mux.NewRouter()
	srv.Routes(router)

	sweepInterval, err := time.ParseDuration(cfg.Tombstone.SweepInterval)
	if err != nil {
		return fmt.Errorf("serve: parsing sweep_interval: %w", err)
	}
	sweep := sweeper.New(st, sweepInterval, logger)

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("serve: parsing shutdown_timeout: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}
	if reqTimeout, err := time.ParseDuration(cfg.Server.RequestTimeout); err == nil {
		httpServer.ReadTimeout = reqTimeout
		httpServer.WriteTimeout = reqTimeout
	}

	runCtx := shutdownContext(cmd.Context(), logger)
	sweep.Start(runCtx)
	defer sweep.Stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("serve: listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("serve: shutting down", "timeout", shutdownTimeout)
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logMetricsPeriodically(gctx, st, logger, metricsLogInterval)
		return nil
	})

	return g.Wait()
}

// logMetricsPeriodically emits a rolling average sync-duration debug line
// every interval, using the trailing 24h window, until ctx is canceled.
func logMetricsPeriodically(ctx context.Context, st *store.Store, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := time.Now().Add(-24 * time.Hour)
			avgMS, err := st.AverageSyncDurationMS(ctx, since)
			if err != nil {
				logger.Warn("serve: metrics: average sync duration failed", "error", err)
				continue
			}
			logger.Debug("serve: metrics", "avg_sync_duration_ms", avgMS, "window", "24h")
		}
	}
}

const metricsLogInterval = 5 * time.Minute
