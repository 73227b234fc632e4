// Package metrics is a small Prometheus-compatible registry: counters,
// gauges and histograms keyed by name, with labels baked into the name, and
// rendered in the text exposition format for a /metrics route.
package metrics

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets suit request and model-call latencies, in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(d int64)  { c.n.Add(d) }
func (c *Counter) Value() int64 { return c.n.Load() }

type Gauge struct{ n atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

// Histogram counts observations into fixed upper bounds. An observation
// above the last bound only shows in +Inf.
type Histogram struct {
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // per bound, not cumulative
	total float64
	n     uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := slices.Clone(bounds)
	slices.Sort(b)
	return &Histogram{bounds: b, hits: make([]uint64, len(b))}
}

func (h *Histogram) Observe(v float64) {
	i, _ := slices.BinarySearch(h.bounds, v)
	h.mu.Lock()
	if i < len(h.hits) {
		h.hits[i]++
	}
	h.total += v
	h.n++
	h.mu.Unlock()
}

// Since observes the seconds elapsed since start.
func (h *Histogram) Since(start time.Time) { h.Observe(time.Since(start).Seconds()) }

func (h *Histogram) snapshot() (bounds []float64, hits []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bounds, slices.Clone(h.hits), h.total, h.n
}

type family struct {
	typ    string // counter, gauge or histogram
	help   string
	series map[string]any // full name to *Counter, *Gauge or *Histogram
}

// Registry owns every series. Families render in the order they were first
// used; series within a family render sorted by name.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*family
	order    []string
}

func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

func getOrCreate[T any](r *Registry, name, help, typ string, create func() *T) *T {
	base := metricBaseName(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	fam := r.families[base]
	if fam == nil {
		fam = &family{typ: typ, series: make(map[string]any)}
		r.families[base] = fam
		r.order = append(r.order, base)
	}
	if fam.help == "" {
		fam.help = help
	}
	if existing, ok := fam.series[name].(*T); ok {
		return existing
	}
	s := create()
	fam.series[name] = s
	return s
}

// Counter returns the counter called name, creating it on first use. name
// may carry labels, see WithLabels.
func (r *Registry) Counter(name, help string) *Counter {
	return getOrCreate(r, name, help, "counter", func() *Counter { return new(Counter) })
}

func (r *Registry) Gauge(name, help string) *Gauge {
	return getOrCreate(r, name, help, "gauge", func() *Gauge { return new(Gauge) })
}

// Histogram returns the histogram called name. Bounds are fixed by the
// first call; nil selects DefaultBuckets.
func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	return getOrCreate(r, name, help, "histogram", func() *Histogram {
		if bounds == nil {
			return newHistogram(DefaultBuckets)
		}
		return newHistogram(bounds)
	})
}

// WithLabels appends label pairs to name:
//
//	WithLabels("carenav_rebuilds_total", "result", "success")
//	// carenav_rebuilds_total{result="success"}
//
// An odd number of kvs leaves name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 == 1 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i+1 < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func metricBaseName(name string) string {
	base, _, _ := strings.Cut(name, "{")
	return base
}

func labelSet(name string) string {
	_, rest, ok := strings.Cut(name, "{")
	if !ok {
		return ""
	}
	return strings.TrimSuffix(rest, "}")
}

// Render writes every family in the Prometheus text format.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out strings.Builder
	for _, base := range r.order {
		fam := r.families[base]
		if fam.help != "" {
			fmt.Fprintf(&out, "# HELP %s %s\n", base, fam.help)
		}
		fmt.Fprintf(&out, "# TYPE %s %s\n", base, fam.typ)

		names := make([]string, 0, len(fam.series))
		for name := range fam.series {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			switch s := fam.series[name].(type) {
			case *Counter:
				fmt.Fprintf(&out, "%s %d\n", name, s.Value())
			case *Gauge:
				fmt.Fprintf(&out, "%s %d\n", name, s.Value())
			case *Histogram:
				writeHistogram(&out, base, labelSet(name), s)
			}
		}
	}
	return out.String()
}

func writeHistogram(out *strings.Builder, base, labels string, h *Histogram) {
	bounds, hits, sum, count := h.snapshot()
	extra, suffix := "", ""
	if labels != "" {
		extra, suffix = ","+labels, "{"+labels+"}"
	}
	var seen uint64
	for i, le := range bounds {
		seen += hits[i]
		fmt.Fprintf(out, "%s_bucket{le=\"%g\"%s} %d\n", base, le, extra, seen)
	}
	fmt.Fprintf(out, "%s_bucket{le=\"+Inf\"%s} %d\n", base, extra, count)
	fmt.Fprintf(out, "%s_sum%s %g\n", base, suffix, sum)
	fmt.Fprintf(out, "%s_count%s %d\n", base, suffix, count)
}

// Handler serves Render over HTTP.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}
