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

	"github.com/gmvreport/gmvdash/internal/dashboard"
	"github.com/gmvreport/gmvdash/internal/metrics"
	"github.com/gmvreport/gmvdash/internal/ratelimit"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/views"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	a, err := newApp(ctx, m, true)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger
	cfg := a.cfg

	if err := a.guard.Start(ctx); err != nil {
		logger.Warn("could not restore session", "error", err)
	}
	if fs, ok := a.store.(interface{ Path() string }); ok && cfg.Session.Watch {
		go func() {
			if err := a.guard.Watch(ctx, fs.Path()); err != nil {
				logger.Error("token watcher stopped", "error", err)
			}
		}()
	}
	if cfg.Queries.GCTime > 0 {
		go a.qc.StartGC(ctx, cfg.Queries.GCTime)
	}

	renderer, err := ui.NewRenderer()
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.LoginLimit.Attempts, cfg.LoginLimit.Window)
	go func() {
		ticker := time.NewTicker(cfg.LoginLimit.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Prune()
			case <-ctx.Done():
				return
			}
		}
	}()

	router := dashboard.NewRouter(dashboard.RouterDeps{
		Service:  a.svc,
		Guard:    a.guard,
		Renderer: renderer,
		Schema:   a.schema,
		Metrics:  m,
		Limiter:  limiter,
		Toasts:   views.NewToasts(5),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "api", cfg.API.BaseURL, "session_store", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	return srv.Shutdown(shutdownCtx)
}
