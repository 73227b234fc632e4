// Command seed replaces the contents of the doctors store with the records
// in a YAML file. Development data only.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/carenav/carenav/engine/app"
	"github.com/carenav/carenav/engine/doctors"
	"github.com/carenav/carenav/pkg/config"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CARENAV_CONFIG"), "path to YAML config (optional)")
		file       = flag.String("file", "testdata/doctors.yaml", "YAML file with a top-level doctors list")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

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

	if err := seed(ctx, cfg.Records, *file, log); err != nil {
		log.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg config.RecordsConfig, file string, log *slog.Logger) error {
	docs, err := doctors.LoadSeedFile(file)
	if err != nil {
		return err
	}
	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.ReplaceAll(ctx, docs)
	if err != nil {
		return err
	}
	log.Info("seeded doctors", "backend", cfg.Backend, "file", file, "records", n)
	return nil
}
