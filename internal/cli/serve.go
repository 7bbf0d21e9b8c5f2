package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mesh-intelligence/playground/internal/agent"
	"github.com/mesh-intelligence/playground/internal/iterations"
	"github.com/mesh-intelligence/playground/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the canvas API and watch the iterations directory",
		Long: `Serve opens the canvas session, reconciles it with the iterations directory,
and serves the HTTP API until interrupted. File changes in the iterations
directory trigger a scan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.settings.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: config listen)")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	if err := ensureDir(a.settings.Store.IterationsDir); err != nil {
		return err
	}
	w, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.close(); err != nil {
			a.logger.Warn("close workspace", "error", err)
		}
	}()

	if pid, err := w.runner.CleanupStale(); err != nil {
		a.logger.Warn("stale generation cleanup failed", "error", err)
	} else if pid != 0 {
		a.logger.Info("stopped stale generation", "pid", pid)
	}
	if _, err := w.session.Scan(ctx); err != nil {
		a.logger.Warn("initial scan failed", "error", err)
	}

	if a.settings.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	models := agent.NewModelLister(a.settings.ModelsCommand, time.Now)
	h := server.NewHandlers(w.session, w.runner, models, a.logger)
	srv := server.New(a.settings.Listen, server.NewRouter(h, a.logger), a.logger)

	watcher := iterations.NewWatcher(a.settings.Store.IterationsDir, func() {
		if _, err := w.session.FetchNow(ctx); err != nil {
			a.logger.Warn("scan after file change failed", "error", err)
		}
	}, iterations.WatcherOptions{Logger: a.logger})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if err := g.Wait(); err != nil {
		return sysError(fmt.Errorf("serve: %w", err))
	}
	return nil
}
