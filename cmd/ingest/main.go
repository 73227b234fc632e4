// Command ingest builds the doctor index from the records store and persists
// it to the configured index storage. With -remote it asks running API
// servers to rebuild over NATS instead. With -every it keeps refreshing on a
// schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carenav/carenav/engine/app"
	"github.com/carenav/carenav/engine/lifecycle"
	"github.com/carenav/carenav/pkg/config"
	"github.com/carenav/carenav/pkg/natsutil"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CARENAV_CONFIG"), "path to YAML config (optional)")
		remote     = flag.Bool("remote", false, "request a rebuild from running servers over NATS")
		reason     = flag.String("reason", "manual refresh", "reason sent with a remote rebuild")
		every      = flag.Duration("every", 0, "rebuild again at this interval until interrupted")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *remote {
		err = requestRebuild(ctx, cfg, *reason, log)
	} else {
		err = build(ctx, cfg, *every, log)
	}
	if err != nil {
		log.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func build(ctx context.Context, cfg config.Config, every time.Duration, log *slog.Logger) error {
	// A local build is announced on NATS when configured, but never serves
	// rebuild requests itself.
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	rebuild := func() error {
		start := time.Now()
		if err := a.Manager.Rebuild(ctx); err != nil {
			return err
		}
		ix := a.Manager.Current()
		log.Info("index built",
			"docs", ix.Len(),
			"fingerprint", ix.Meta().Fingerprint,
			"storage", cfg.Index.Storage,
			"duration", time.Since(start),
		)
		return nil
	}
	if err := rebuild(); err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}

	log.Info("refreshing on a schedule", "every", every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := rebuild(); err != nil {
				log.Error("scheduled rebuild failed", "err", err)
			}
		}
	}
}

func requestRebuild(ctx context.Context, cfg config.Config, reason string, log *slog.Logger) error {
	if cfg.NATS.URL == "" {
		return fmt.Errorf("-remote needs nats.url or NATS_URL")
	}
	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("carenav-ingest"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	timeout := cfg.Server.RebuildTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("requesting rebuild", "subject", cfg.NATS.RebuildSubject, "reason", reason)
	reply, err := natsutil.Request[lifecycle.RebuildRequest, lifecycle.RebuildReply](ctx, nc,
		cfg.NATS.RebuildSubject, lifecycle.RebuildRequest{Reason: reason})
	if err != nil {
		return fmt.Errorf("rebuild request: %w", err)
	}
	fmt.Println(reply.Message)
	if !reply.OK {
		return fmt.Errorf("server reported failure")
	}
	log.Info("remote rebuild done", "docs", reply.Documents, "fingerprint", reply.Fingerprint)
	return nil
}
