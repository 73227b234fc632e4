package rag

import (
	"errors"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/pkg/metrics"
)

// Metric names exported by the query path.
const (
	MetricQueries       = "carenav_queries_total"
	MetricQueryErrors   = "carenav_query_errors_total"
	MetricQueryDuration = "carenav_query_duration_seconds"
	MetricListed        = "carenav_listed_doctors_total"
)

var queryBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

type instruments struct {
	reg      *metrics.Registry
	queries  *metrics.Counter
	duration *metrics.Histogram
	listed   *metrics.Counter
}

func newInstruments(reg *metrics.Registry) *instruments {
	if reg == nil {
		reg = metrics.New()
	}
	return &instruments{
		reg:      reg,
		queries:  reg.Counter(MetricQueries, "Queries answered."),
		duration: reg.Histogram(MetricQueryDuration, "End-to-end query latency.", queryBuckets),
		listed:   reg.Counter(MetricListed, "Verified doctors returned in listings."),
	}
}

// fault counts err under its kind label.
func (m *instruments) fault(err error) {
	kind := "unknown"
	if k := domain.KindOf(err); k != nil {
		kind = kindLabel(k)
	}
	m.reg.Counter(metrics.WithLabels(MetricQueryErrors, "kind", kind), "Query faults by kind.").Inc()
}

func kindLabel(k error) string {
	switch {
	case errors.Is(k, domain.ErrIndexNotReady):
		return "not_ready"
	case errors.Is(k, domain.ErrEmbedding):
		return "embedding"
	case errors.Is(k, domain.ErrCompletion):
		return "completion"
	case errors.Is(k, domain.ErrStore):
		return "store"
	case errors.Is(k, domain.ErrInvalidQuery):
		return "invalid"
	default:
		return "other"
	}
}
