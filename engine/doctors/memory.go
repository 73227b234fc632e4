package doctors

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/carenav/carenav/engine/domain"
)

// MemoryStore keeps records in a slice. Used for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []domain.Doctor
}

// NewMemoryStore returns a store holding a copy of docs.
func NewMemoryStore(docs []domain.Doctor) *MemoryStore {
	return &MemoryStore{docs: slices.Clone(docs)}
}

func (m *MemoryStore) FetchAll(_ context.Context) ([]domain.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.docs), nil
}

func (m *MemoryStore) FetchBySpecialty(_ context.Context, needle string, limit int) ([]domain.Doctor, error) {
	m.mu.RLock()
	var out []domain.Doctor
	for _, d := range m.docs {
		if matches(d.Specialty, needle) {
			out = append(out, d)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Doctor) int {
		return cmp.Compare(b.ExperienceYears, a.ExperienceYears)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ReplaceAll(_ context.Context, docs []domain.Doctor) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = slices.Clone(docs)
	return len(docs), nil
}
