package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hostmirror/hostmirror/internal/config"
	"github.com/hostmirror/hostmirror/internal/control"
	"github.com/hostmirror/hostmirror/internal/sync"
)

// serveShutdownTimeout is how long the HTTP server gets to drain on exit.
const serveShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API server",
		Long: `Start the local job-control HTTP server. The API exposes sync start,
pause, resume, cancel, and status, a configuration endpoint, and a
websocket progress stream. With auto_sync enabled, a scheduler starts a
sync pass every sync_interval_minutes.

The config file is watched for changes; edits apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := control.New(svc.engine, svc.holder, svc.logger)

	httpSrv := &http.Server{
		Addr:              svc.holder.Config().Control.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.logger.Info("control server listening", slog.String("addr", httpSrv.Addr))

		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return config.Watch(gctx, svc.holder, svc.logger)
	})

	g.Go(func() error {
		runScheduler(gctx, svc)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// runScheduler starts a sync pass every sync_interval_minutes while
// auto_sync is enabled. The interval is re-read each tick so config
// changes apply without a restart. A rejected start (job already active)
// is routine, not an error.
func runScheduler(ctx context.Context, svc *services) {
	for {
		interval := time.Duration(svc.holder.Config().Sync.SyncIntervalMinutes) * time.Minute

		select {
		case <-ctx.Done():
			return

		case <-time.After(interval):
			if !svc.holder.Config().Sync.AutoSync {
				continue
			}

			_, err := svc.engine.Start(flagAccount, sync.Overrides{})

			switch {
			case errors.Is(err, sync.ErrSyncConflict):
				svc.logger.Debug("scheduled sync skipped, job already active")
			case err != nil:
				svc.logger.Warn("scheduled sync failed to start", slog.String("error", err.Error()))
			default:
				svc.logger.Info("scheduled sync started")
			}
		}
	}
}
