package doctors

import (
	"context"
	"log/slog"
	"strings"

	"github.com/carenav/carenav/engine/domain"
)

// Lookup fetches the verified listing for a recommended specialty straight
// from the store, bypassing the semantic index.
type Lookup struct {
	src    Source
	limit  int
	logger *slog.Logger
}

// NewLookup creates a Lookup returning at most limit doctors (<= 0 means
// DefaultLookupLimit).
func NewLookup(src Source, limit int, logger *slog.Logger) *Lookup {
	if limit <= 0 {
		limit = domain.DefaultLookupLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{src: src, limit: limit, logger: logger}
}

// Verified returns the most experienced doctors whose specialty contains
// specialty. A blank specialty issues no query. Store failures are logged and
// yield an empty listing together with the tagged error, so callers can still
// answer without it.
func (l *Lookup) Verified(ctx context.Context, specialty string) ([]domain.Doctor, error) {
	specialty = strings.TrimSpace(specialty)
	if specialty == "" {
		return nil, nil
	}
	docs, err := l.src.FetchBySpecialty(ctx, specialty, l.limit)
	if err != nil {
		l.logger.Warn("doctor lookup failed", "specialty", specialty, "err", err)
		return nil, domain.Wrap("doctors.Verified", domain.ErrStore, err)
	}
	if len(docs) > l.limit {
		docs = docs[:l.limit]
	}
	return docs, nil
}
