package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/carenav/carenav/engine/doctors"
	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/fn"
)

// Deps holds the external dependencies for an index build.
type Deps struct {
	Source   doctors.Source
	Embedder semantic.Embedder
	Storage  semantic.Storage
	Options  semantic.BuildOptions
	Logger   *slog.Logger
}

// --- Pipeline Stages ---

// NewFetch creates a stage reading every record from src.
func NewFetch(src doctors.Source) fn.Stage[struct{}, []domain.Doctor] {
	return func(ctx context.Context, _ struct{}) fn.Result[[]domain.Doctor] {
		recs, err := src.FetchAll(ctx)
		if err != nil {
			return fn.Err[[]domain.Doctor](domain.Wrap("ingest.Fetch", domain.ErrStore, err))
		}
		return fn.Ok(recs)
	}
}

// ProjectStage renders records into documents.
var ProjectStage fn.Stage[[]domain.Doctor, []semantic.Document] = fn.MapStage(Project)

// NewBuild creates a stage embedding documents into an index.
func NewBuild(emb semantic.Embedder, opts semantic.BuildOptions) fn.Stage[[]semantic.Document, *semantic.Index] {
	return func(ctx context.Context, docs []semantic.Document) fn.Result[*semantic.Index] {
		ix, err := semantic.Build(ctx, emb, docs, opts)
		return fn.FromPair(ix, err)
	}
}

// NewPersist creates a stage writing the index to storage and passing it on.
func NewPersist(s semantic.Storage) fn.Stage[*semantic.Index, *semantic.Index] {
	return func(ctx context.Context, ix *semantic.Index) fn.Result[*semantic.Index] {
		if err := ix.Persist(ctx, s); err != nil {
			return fn.Err[*semantic.Index](err)
		}
		return fn.Ok(ix)
	}
}

// NewPipeline composes fetch → project → build → persist. The returned stage
// never yields a partially built index.
func NewPipeline(d Deps) fn.Stage[struct{}, *semantic.Index] {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetch := fn.TracedStage("ingest.fetch", NewFetch(d.Source))
	project := fn.TracedStage("ingest.project", ProjectStage)
	build := fn.TracedStage("ingest.build", NewBuild(d.Embedder, d.Options))
	persist := fn.TracedStage("ingest.persist", NewPersist(d.Storage))

	return func(ctx context.Context, in struct{}) fn.Result[*semantic.Index] {
		start := time.Now()
		r := fn.Then(fn.Then(fn.Then(fetch, project), build), persist)(ctx, in)
		if ix, err := r.Unwrap(); err == nil {
			logger.Info("index built", "docs", ix.Len(), "fingerprint", ix.Meta().Fingerprint, "duration", time.Since(start))
		}
		return r
	}
}

// Run executes the full pipeline once.
func Run(ctx context.Context, d Deps) (*semantic.Index, error) {
	return NewPipeline(d)(ctx, struct{}{}).Unwrap()
}
