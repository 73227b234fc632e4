package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/carenav/carenav/engine/doctors"
	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/ingest"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/metrics"
)

// shapeEmbedder embeds text by a few shape features. When block is set,
// every call waits on it and the first call closes entered.
type shapeEmbedder struct {
	calls   atomic.Int64
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (e *shapeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.block != nil {
		e.once.Do(func() { close(e.entered) })
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []float32{float32(len(text)), float32(strings.Count(text, "e")), 1}, nil
}

func generation(prefix string, n int) []domain.Doctor {
	out := make([]domain.Doctor, n)
	for i := range out {
		out[i] = domain.Doctor{
			Name:            fmt.Sprintf("%s-%d", prefix, i),
			Specialty:       []string{"Cardiologist", "Dermatologist", "Neurologist"}[i%3],
			Location:        "Springfield",
			ExperienceYears: i,
		}
	}
	return out
}

func newManager(t *testing.T, store *doctors.MemoryStore, emb semantic.Embedder, opts ...Option) (*Manager, semantic.Storage) {
	t.Helper()
	storage := semantic.NewFileStorage(filepath.Join(t.TempDir(), "index.json"))
	return New(ingest.Deps{
		Source:   store,
		Embedder: emb,
		Storage:  storage,
		Options:  semantic.DefaultBuildOptions(),
	}, opts...), storage
}

func TestStart_BuildsThenLoads(t *testing.T) {
	store := doctors.NewMemoryStore(generation("a", 4))
	emb := &shapeEmbedder{}
	m, storage := newManager(t, store, emb)

	if m.State() != StateUninitialized || m.Current() != nil {
		t.Fatal("new manager should be uninitialized")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateReady || m.Current().Len() != 4 {
		t.Fatalf("state=%s len=%d", m.State(), m.Current().Len())
	}
	if emb.calls.Load() != 4 {
		t.Fatalf("embed calls = %d", emb.calls.Load())
	}

	emb2 := &shapeEmbedder{}
	m2 := New(ingest.Deps{Source: store, Embedder: emb2, Storage: storage})
	if err := m2.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if emb2.calls.Load() != 0 {
		t.Errorf("loading a snapshot should not embed, got %d calls", emb2.calls.Load())
	}
	if m2.Current().Meta().Fingerprint != m.Current().Meta().Fingerprint {
		t.Error("loaded index differs from the built one")
	}
}

func TestStart_EmptyStore(t *testing.T) {
	m, _ := newManager(t, doctors.NewMemoryStore(nil), &shapeEmbedder{})
	err := m.Start(context.Background())
	if !errors.Is(err, domain.ErrIndexBuild) {
		t.Fatalf("err = %v", err)
	}
	if m.State() != StateUninitialized || m.Current() != nil {
		t.Fatal("failed start should leave the manager uninitialized")
	}
}

func TestStart_CorruptSnapshotFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	emb := &shapeEmbedder{}
	m := New(ingest.Deps{
		Source:   doctors.NewMemoryStore(generation("a", 2)),
		Embedder: emb,
		Storage:  semantic.NewFileStorage(path),
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if emb.calls.Load() != 2 {
		t.Errorf("expected a fresh build, embed calls = %d", emb.calls.Load())
	}
}

func TestRebuild_PicksUpChanges(t *testing.T) {
	reg := metrics.New()
	store := doctors.NewMemoryStore(generation("a", 2))
	var events []Rebuilt
	m, _ := newManager(t, store, &shapeEmbedder{}, WithMetrics(reg), WithNotifier(func(_ context.Context, ev Rebuilt) {
		events = append(events, ev)
	}))
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := m.Current()

	if _, err := store.ReplaceAll(context.Background(), generation("b", 5)); err != nil {
		t.Fatal(err)
	}
	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := m.Current()
	if after == before || after.Len() != 5 {
		t.Fatalf("index not swapped: len=%d", after.Len())
	}
	if n := reg.Gauge(MetricDocuments, "").Value(); n != 5 {
		t.Errorf("documents gauge = %d", n)
	}
	if n := reg.Counter(`carenav_rebuilds_total{result="success"}`, "").Value(); n != 2 {
		t.Errorf("successful builds = %d", n)
	}
	if len(events) != 2 || events[0].Source != "build" || events[1].Source != "rebuild" || events[1].Documents != 5 {
		t.Errorf("events = %+v", events)
	}
}

func TestRebuildWithReply_DescribesItsOwnIndex(t *testing.T) {
	store := doctors.NewMemoryStore(generation("a", 2))
	m, _ := newManager(t, store, &shapeEmbedder{})
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := store.ReplaceAll(ctx, generation("b", 5)); err != nil {
		t.Fatal(err)
	}
	first, err := m.RebuildWithReply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	built := m.Current()

	if _, err := store.ReplaceAll(ctx, generation("c", 3)); err != nil {
		t.Fatal(err)
	}
	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	if !first.OK || first.Documents != 5 || first.Fingerprint != built.Meta().Fingerprint {
		t.Errorf("reply = %+v, want the 5-document index", first)
	}
	if first.Fingerprint == m.Current().Meta().Fingerprint {
		t.Error("later rebuild should have produced a different fingerprint")
	}
}

func TestRebuildWithReply_FirstBuildFailure(t *testing.T) {
	m, _ := newManager(t, doctors.NewMemoryStore(nil), &shapeEmbedder{})
	reply, err := m.RebuildWithReply(context.Background())
	if !errors.Is(err, domain.ErrRebuild) {
		t.Fatalf("err = %v", err)
	}
	if reply.OK || strings.Contains(reply.Message, "previous index") || !strings.HasPrefix(reply.Message, MsgRebuildFailed) {
		t.Errorf("reply = %+v", reply)
	}
}

func TestRebuild_FailureKeepsPreviousIndex(t *testing.T) {
	store := doctors.NewMemoryStore(generation("a", 3))
	emb := &shapeEmbedder{}
	m, storage := newManager(t, store, emb)
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	before := m.Current()
	want, err := before.Query(ctx, emb, "heart specialist", 2)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.ReplaceAll(ctx, nil); err != nil {
		t.Fatal(err)
	}
	reply, rebuildErr := m.RebuildWithReply(ctx)
	if !errors.Is(rebuildErr, domain.ErrRebuild) || !errors.Is(rebuildErr, domain.ErrIndexBuild) {
		t.Fatalf("err = %v", rebuildErr)
	}
	if m.State() != StateReady || m.Current() != before {
		t.Fatalf("previous index should keep serving, state=%s", m.State())
	}
	got, err := m.Current().Query(ctx, emb, "heart specialist", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d hits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("hit %d = %s, want %s", i, got[i].ID, want[i].ID)
		}
	}

	reloaded, err := semantic.Load(ctx, storage)
	if err != nil {
		t.Fatalf("previous snapshot not restored: %v", err)
	}
	if reloaded.Meta().Fingerprint != before.Meta().Fingerprint {
		t.Error("restored snapshot differs from serving index")
	}
	if reply.OK || !strings.Contains(reply.Message, "previous index still serving") {
		t.Errorf("reply = %+v", reply)
	}
}

func TestRebuild_SingleFlight(t *testing.T) {
	store := doctors.NewMemoryStore(generation("a", 3))
	emb := &shapeEmbedder{}
	m, _ := newManager(t, store, emb)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	old := m.Current()

	emb.block = make(chan struct{})
	emb.entered = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- m.Rebuild(context.Background()) }()
	<-emb.entered

	if m.State() != StateRebuilding {
		t.Errorf("state = %s, want rebuilding", m.State())
	}
	if m.Current() != old {
		t.Error("queries must keep the old index during a rebuild")
	}
	r, err := m.RebuildWithReply(context.Background())
	if !errors.Is(err, domain.ErrRebuildInProgress) {
		t.Fatalf("second rebuild err = %v", err)
	}
	if r.Message != MsgRebuildRunning {
		t.Errorf("reply = %+v", r)
	}

	close(emb.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if m.State() != StateReady || m.Current() == old {
		t.Fatal("rebuild did not complete")
	}
}

func TestConcurrentQueriesSeeOneSnapshot(t *testing.T) {
	store := doctors.NewMemoryStore(generation("a", 6))
	emb := &shapeEmbedder{}
	m, _ := newManager(t, store, emb)
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var rebuilds sync.WaitGroup
	rebuilds.Add(1)
	go func() {
		defer rebuilds.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			prefix := []string{"a", "b"}[i%2]
			if _, err := store.ReplaceAll(ctx, generation(prefix, 6)); err != nil {
				t.Error(err)
				return
			}
			if err := m.Rebuild(ctx); err != nil && !errors.Is(err, domain.ErrRebuildInProgress) {
				t.Error(err)
				return
			}
		}
	}()

	var queries sync.WaitGroup
	for w := 0; w < 8; w++ {
		queries.Add(1)
		go func() {
			defer queries.Done()
			for i := 0; i < 50; i++ {
				hits, err := m.Current().Query(ctx, emb, "need a neurologist", 6)
				if err != nil {
					t.Error(err)
					return
				}
				gen := ""
				for _, h := range hits {
					g := strings.SplitN(h.Doctor.Name, "-", 2)[0]
					if gen == "" {
						gen = g
					} else if g != gen {
						t.Errorf("mixed snapshot: %s and %s", gen, g)
						return
					}
				}
			}
		}()
	}
	queries.Wait()
	close(stop)
	rebuilds.Wait()
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateUninitialized: "uninitialized",
		StateReady:         "ready",
		StateRebuilding:    "rebuilding",
		State(9):           "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d: got %q", s, s.String())
		}
	}
}
