package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rentcar/internal/infra/config"
	"rentcar/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getenv("APP_ENV", "dev"))
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rentcar stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("rentcar stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	if err := app.loadBookingFixtures(ctx, cfg.FixturesPath, logger); err != nil {
		logger.Warn("booking fixtures load failed", "error", err, "path", cfg.FixturesPath)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.Storage)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return app.server.Shutdown(shutdownCtx)
	})
	for _, bg := range app.background {
		g.Go(func() error {
			err := bg.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background task failed", "task", bg.name, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
