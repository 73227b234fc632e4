// Package main implements the carenav API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carenav/carenav/engine/app"
	"github.com/carenav/carenav/pkg/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CARENAV_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer a.Close()

	// A failed start is not fatal: /api/health reports it and a rebuild can
	// recover once the store or model is back.
	if err := a.Start(ctx); err != nil {
		logger.Error("index not ready", "err", err)
	}

	api := newServer(a.Service, a.Manager, a.Metrics, cfg.Server, logger)
	go api.pruneLimiter(ctx, time.Minute)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RebuildTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Server.Addr, "mode", a.Service.Mode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
