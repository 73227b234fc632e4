// Package doctors reads authoritative doctor records from the backing store
// and performs the verified re-lookup by specialty.
package doctors

import (
	"context"
	"strings"

	"github.com/carenav/carenav/engine/domain"
)

// Source is a read-only view of the doctors store.
type Source interface {
	// FetchAll returns every record in the store's natural order.
	FetchAll(ctx context.Context) ([]domain.Doctor, error)
	// FetchBySpecialty returns at most limit records whose specialty
	// contains needle, case-insensitively, most experienced first. Records
	// with equal experience keep natural order.
	FetchBySpecialty(ctx context.Context, needle string, limit int) ([]domain.Doctor, error)
}

// Writer replaces the contents of a store. Used for seeding.
type Writer interface {
	ReplaceAll(ctx context.Context, docs []domain.Doctor) (int, error)
}

// Store is a Source that can also be written.
type Store interface {
	Source
	Writer
}

func matches(specialty, needle string) bool {
	return strings.Contains(strings.ToLower(specialty), strings.ToLower(needle))
}
