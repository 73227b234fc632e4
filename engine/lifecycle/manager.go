// Package lifecycle owns the serving index: load-or-build at startup,
// single-flight rebuilds, and the atomic swap that keeps queries on one
// consistent snapshot.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/ingest"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/metrics"
)

// State of the serving index.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRebuilding:
		return "rebuilding"
	default:
		return "unknown"
	}
}

// Metric names.
const (
	MetricRebuilds  = "carenav_rebuilds_total"
	MetricDocuments = "carenav_index_documents"
	MetricState     = "carenav_index_state"
)

// Rebuilt is announced after every successful build.
type Rebuilt struct {
	Fingerprint string        `json:"fingerprint"`
	Documents   int           `json:"documents"`
	Model       string        `json:"model,omitempty"`
	BuiltAt     time.Time     `json:"built_at"`
	Took        time.Duration `json:"took"`
	Source      string        `json:"source"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics registers rebuild and index-size instruments on reg.
func WithMetrics(reg *metrics.Registry) Option { return func(m *Manager) { m.reg = reg } }

// WithNotifier calls fn after each successful build or load.
func WithNotifier(fn func(context.Context, Rebuilt)) Option {
	return func(m *Manager) { m.notify = fn }
}

// Manager serves the current index and replaces it on demand.
type Manager struct {
	deps    ingest.Deps
	current atomic.Pointer[semantic.Index]
	state   atomic.Int32
	mu      sync.Mutex
	logger  *slog.Logger
	reg     *metrics.Registry
	notify  func(context.Context, Rebuilt)
}

// New creates a Manager in StateUninitialized. deps.Storage holds the
// persisted snapshot; deps.Source is re-read on every build.
func New(deps ingest.Deps, opts ...Option) *Manager {
	m := &Manager{deps: deps}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.reg == nil {
		m.reg = metrics.New()
	}
	if m.deps.Logger == nil {
		m.deps.Logger = m.logger
	}
	return m
}

// Current returns the serving index, or nil before the first successful
// Start or Rebuild. The returned snapshot is never mutated.
func (m *Manager) Current() *semantic.Index { return m.current.Load() }

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.reg.Gauge(MetricState, "0 uninitialized, 1 ready, 2 rebuilding.").Set(int64(s))
}

// Start loads the persisted index, falling back to a full build when the
// snapshot is missing or unusable. On failure the manager stays
// uninitialized and queries report the index as not ready.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	ix, err := semantic.Load(ctx, m.deps.Storage)
	if err == nil {
		m.logger.Info("loaded index snapshot", "docs", ix.Len(), "fingerprint", ix.Meta().Fingerprint)
		m.swap(ctx, ix, start, "load")
		return nil
	}
	if !errors.Is(err, domain.ErrIndexLoad) {
		return err
	}
	if errors.Is(err, semantic.ErrNoSnapshot) {
		m.logger.Info("no index snapshot, building")
	} else {
		m.logger.Warn("index snapshot unusable, rebuilding", "err", err)
	}

	ix, err = ingest.Run(ctx, m.deps)
	if err != nil {
		m.count("failure")
		return err
	}
	m.count("success")
	m.swap(ctx, ix, start, "build")
	return nil
}

// Rebuild discards the persisted snapshot and builds a fresh index from the
// store. Only one rebuild runs at a time; a concurrent call returns
// ErrRebuildInProgress. On failure the previous index keeps serving and is
// persisted again so a restart still finds it.
func (m *Manager) Rebuild(ctx context.Context) error {
	_, err := m.rebuild(ctx)
	return err
}

// rebuild returns the index left serving when it finished: the new one on
// success, the previous one (possibly nil) on failure.
func (m *Manager) rebuild(ctx context.Context) (*semantic.Index, error) {
	if !m.mu.TryLock() {
		return nil, domain.Fail("lifecycle.Rebuild", domain.ErrRebuildInProgress)
	}
	defer m.mu.Unlock()

	start := time.Now()
	prev := m.current.Load()
	m.setState(StateRebuilding)

	if err := m.deps.Storage.Delete(ctx); err != nil {
		m.logger.Warn("discard snapshot failed", "err", err)
	}

	ix, err := ingest.Run(ctx, m.deps)
	if err != nil {
		m.count("failure")
		m.logger.Error("index rebuild failed", "err", err, "duration", time.Since(start))
		if prev != nil {
			if perr := prev.Persist(ctx, m.deps.Storage); perr != nil {
				m.logger.Warn("restore previous snapshot failed", "err", perr)
			}
			m.setState(StateReady)
		} else {
			m.setState(StateUninitialized)
		}
		return prev, domain.Wrap("lifecycle.Rebuild", domain.ErrRebuild, err)
	}

	m.count("success")
	m.swap(ctx, ix, start, "rebuild")
	return ix, nil
}

func (m *Manager) swap(ctx context.Context, ix *semantic.Index, start time.Time, source string) {
	m.current.Store(ix)
	m.setState(StateReady)
	m.reg.Gauge(MetricDocuments, "Documents in the serving index.").Set(int64(ix.Len()))
	if m.notify == nil {
		return
	}
	meta := ix.Meta()
	m.notify(ctx, Rebuilt{
		Fingerprint: meta.Fingerprint,
		Documents:   ix.Len(),
		Model:       meta.Model,
		BuiltAt:     meta.BuiltAt,
		Took:        time.Since(start),
		Source:      source,
	})
}

func (m *Manager) count(result string) {
	m.reg.Counter(metrics.WithLabels(MetricRebuilds, "result", result), "Index builds by result.").Inc()
}
