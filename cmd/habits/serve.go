package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tct123/open-source-habit-tracker-app/internal/server"
	ws "github.com/tct123/open-source-habit-tracker-app/internal/websocket"
)

const (
	rolloverInterval = 30 * time.Second
	sweepInterval    = 5 * time.Minute
	shutdownTimeout  = 5 * time.Second
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket feed and day rollover watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()
			if addr != "" {
				e.cfg.Addr = addr
			}
			return runServe(cmd.Context(), e)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(parent context.Context, e *env) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(e.db, e.tracker, e.cfg.Backup, e.logger)
	httpServer := &http.Server{
		Addr:         e.cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.logger.Info("habits running", "addr", e.cfg.Addr, "backup", srv.BackupManager().Location())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return e.tracker.WatchDay(ctx, rolloverInterval, func(day string) {
			e.logger.Info("day rolled over", "date", day)
			srv.Hub().Broadcast(ws.DayRolled(day))
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				srv.Limiter().Sweep()
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		e.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
