package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/carenav/carenav/engine/domain"
)

// SnapshotVersion is bumped whenever the on-disk layout changes.
const SnapshotVersion = 1

// ErrNoSnapshot is returned by a Storage that has nothing persisted.
var ErrNoSnapshot = errors.New("semantic: no persisted snapshot")

// Snapshot is the full serialisable state of an index.
type Snapshot struct {
	Version   int         `json:"version"`
	Meta      Meta        `json:"meta"`
	Documents []Document  `json:"documents"`
	Vectors   [][]float32 `json:"vectors"`
}

// Storage is durable storage for index snapshots.
type Storage interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Delete(ctx context.Context) error
}

// Snapshot captures the index for persistence.
func (ix *Index) Snapshot() *Snapshot {
	return &Snapshot{
		Version:   SnapshotVersion,
		Meta:      ix.meta,
		Documents: ix.docs,
		Vectors:   ix.vecs,
	}
}

// Persist writes the full index to s.
func (ix *Index) Persist(ctx context.Context, s Storage) error {
	if ix.Len() == 0 {
		return domain.Fail("semantic.Persist", domain.ErrIndexNotReady)
	}
	if err := s.Save(ctx, ix.Snapshot()); err != nil {
		return domain.Wrap("semantic.Persist", domain.ErrStorage, err)
	}
	return nil
}

// Load reads an index back from s. Missing, corrupt, or inconsistent
// snapshots fail with ErrIndexLoad; callers fall back to Build.
func Load(ctx context.Context, s Storage) (*Index, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, domain.Wrap("semantic.Load", domain.ErrIndexLoad, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, domain.Wrap("semantic.Load", domain.ErrIndexLoad,
			fmt.Errorf("snapshot version %d, want %d", snap.Version, SnapshotVersion))
	}
	ix, err := New(snap.Meta, snap.Documents, snap.Vectors)
	if err != nil {
		return nil, domain.Wrap("semantic.Load", domain.ErrIndexLoad, err)
	}
	if snap.Meta.Dimensions != 0 && snap.Meta.Dimensions != ix.meta.Dimensions {
		return nil, domain.Wrap("semantic.Load", domain.ErrIndexLoad,
			fmt.Errorf("meta says %d dimensions, vectors have %d", snap.Meta.Dimensions, ix.meta.Dimensions))
	}
	return ix, nil
}
