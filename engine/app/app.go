// Package app assembles the recommendation pipeline from configuration:
// the doctors store, the guarded model clients, index storage, the
// lifecycle manager and the query service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/carenav/carenav/engine/doctors"
	"github.com/carenav/carenav/engine/ingest"
	"github.com/carenav/carenav/engine/lifecycle"
	"github.com/carenav/carenav/engine/rag"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/config"
	"github.com/carenav/carenav/pkg/metrics"
	"github.com/carenav/carenav/pkg/ollama"
	"github.com/carenav/carenav/pkg/openai"
	"github.com/carenav/carenav/pkg/resilience"
)

// App is a wired pipeline. Call Start before serving and Close when done.
type App struct {
	Config  config.Config
	Store   doctors.Store
	Manager *lifecycle.Manager
	Service *rag.Service
	Metrics *metrics.Registry

	nc      *nats.Conn
	subs    []*nats.Subscription
	closers []func() error
	logger  *slog.Logger
}

// Open builds every component named by cfg. Nothing is indexed yet; Start
// loads or builds the index.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Metrics: metrics.New(), logger: logger}

	store, closeStore, err := OpenStore(ctx, cfg.Records, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		a.Close()
		return nil, err
	}
	comp, err := NewCompleter(cfg.Completer)
	if err != nil {
		a.Close()
		return nil, err
	}
	guardedEmb := rag.GuardEmbedder(emb, a.breaker("embedder", cfg.Breaker))
	guardedComp := rag.GuardCompleter(comp, a.breaker("completer", cfg.Breaker))

	storage, err := OpenStorage(cfg.Index)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := storage.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	opts := []lifecycle.Option{lifecycle.WithLogger(logger), lifecycle.WithMetrics(a.Metrics)}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("carenav"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: connect nats %s: %w", cfg.NATS.URL, err)
		}
		a.nc = nc
		opts = append(opts, lifecycle.WithNotifier(lifecycle.Announcer(nc, cfg.NATS.RebuiltSubject, logger)))
	}

	a.Manager = lifecycle.New(ingest.Deps{
		Source:   store,
		Embedder: guardedEmb,
		Storage:  storage,
		Options:  buildOptions(cfg.Index, emb),
		Logger:   logger,
	}, opts...)

	mode, err := rag.ParseMode(cfg.Generator.Mode)
	if err != nil {
		a.Close()
		return nil, err
	}
	svcOpts := rag.Options{Mode: mode, TopK: cfg.Index.TopK, Metrics: a.Metrics, Logger: logger}
	if len(cfg.Generator.SpecialistLabels) > 0 {
		svcOpts.Parser = &rag.Parser{SpecialistLabels: cfg.Generator.SpecialistLabels}
	}
	lookup := doctors.NewLookup(store, cfg.Generator.LookupLimit, logger)
	a.Service = rag.NewService(a.Manager, guardedEmb, guardedComp, lookup, svcOpts)
	return a, nil
}

// Start loads or builds the serving index, then begins answering remote
// rebuild requests when NATS is configured. A failed start leaves the
// service not ready; the caller decides whether that is fatal.
func (a *App) Start(ctx context.Context) error {
	err := a.Manager.Start(ctx)
	if a.nc != nil && len(a.subs) == 0 {
		sub, serr := a.Manager.ServeRebuilds(a.nc, a.Config.NATS.RebuildSubject, a.Config.Server.RebuildTimeout)
		if serr != nil {
			return errors.Join(err, fmt.Errorf("app: serve rebuilds: %w", serr))
		}
		a.subs = append(a.subs, sub)
		if ferr := a.nc.Flush(); ferr != nil {
			return errors.Join(err, fmt.Errorf("app: flush nats: %w", ferr))
		}
		a.logger.Info("serving rebuild requests", "subject", sub.Subject)
	}
	return err
}

// NATS returns the shared connection, or nil when NATS is not configured.
func (a *App) NATS() *nats.Conn { return a.nc }

// Close releases every connection in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for _, s := range a.subs {
		if err := s.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	a.subs = nil
	if a.nc != nil {
		a.nc.Close()
		a.nc = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) breaker(name string, cfg config.BreakerConfig) *resilience.Breaker {
	opts := resilience.DefaultBreakerOpts
	opts.Name = name
	if cfg.FailThreshold > 0 {
		opts.FailThreshold = cfg.FailThreshold
	}
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	open := a.Metrics.Gauge(metrics.WithLabels("carenav_breaker_open", "name", name), "1 while the named breaker rejects calls.")
	opts.OnStateChange = func(name string, from, to resilience.State) {
		a.logger.Warn("breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		if to == resilience.StateOpen {
			open.Set(1)
		} else {
			open.Set(0)
		}
	}
	return resilience.NewBreaker(opts)
}

// OpenStore connects the configured doctors backend. The returned close
// func is never nil.
func OpenStore(ctx context.Context, cfg config.RecordsConfig, logger *slog.Logger) (doctors.Store, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Backend {
	case "postgres":
		dsn := cfg.Postgres.ConnString()
		if cfg.Postgres.Migrate {
			if err := doctors.Migrate(dsn); err != nil {
				return nil, nop, err
			}
		}
		pg, err := doctors.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, nop, err
		}
		logger.Info("doctors store ready", "backend", "postgres", "host", cfg.Postgres.Host, "db", cfg.Postgres.Name)
		return pg, pg.Close, nil
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			return nil, nop, fmt.Errorf("app: neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, nop, fmt.Errorf("app: neo4j connectivity: %w", err)
		}
		logger.Info("doctors store ready", "backend", "neo4j", "url", cfg.Neo4j.URL)
		return doctors.NewNeo4jStore(driver, cfg.Neo4j.Database), func() error {
			return driver.Close(context.Background())
		}, nil
	case "memory":
		docs, err := doctors.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, nop, err
		}
		logger.Info("doctors store ready", "backend", "memory", "records", len(docs))
		return doctors.NewMemoryStore(docs), nop, nil
	default:
		return nil, nop, fmt.Errorf("app: unknown records backend %q", cfg.Backend)
	}
}

// NewEmbedder returns the configured embedding client.
func NewEmbedder(cfg config.ModelConfig) (semantic.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewEmbedClient(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "openai":
		return openai.NewClient(openaiConfig(cfg))
	default:
		return nil, fmt.Errorf("app: unknown embedder provider %q", cfg.Provider)
	}
}

// NewCompleter returns the configured text-generation client.
func NewCompleter(cfg config.ModelConfig) (rag.Completer, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewChatClient(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout), nil
	case "openai":
		return openai.NewClient(openaiConfig(cfg))
	default:
		return nil, fmt.Errorf("app: unknown completer provider %q", cfg.Provider)
	}
}

func openaiConfig(cfg config.ModelConfig) openai.Config {
	return openai.Config{
		BaseURL:     cfg.BaseURL,
		APIKeyEnv:   cfg.APIKeyEnv,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
}

// OpenStorage returns the configured snapshot storage.
func OpenStorage(cfg config.IndexConfig) (semantic.Storage, error) {
	switch cfg.Storage {
	case "file":
		return semantic.NewFileStorage(cfg.Path), nil
	case "qdrant":
		return semantic.NewQdrantStorage(cfg.QdrantAddr, cfg.Collection)
	default:
		return nil, fmt.Errorf("app: unknown index storage %q", cfg.Storage)
	}
}

func buildOptions(cfg config.IndexConfig, emb semantic.Embedder) semantic.BuildOptions {
	opts := semantic.DefaultBuildOptions()
	if cfg.EmbedWorkers > 0 {
		opts.Workers = cfg.EmbedWorkers
	}
	if cfg.EmbedRate > 0 {
		opts.RateLimit = rate.Limit(cfg.EmbedRate)
	}
	if cfg.EmbedBurst > 0 {
		opts.Burst = cfg.EmbedBurst
	}
	if m, ok := emb.(interface{ Model() string }); ok {
		opts.Model = m.Model()
	}
	return opts
}
