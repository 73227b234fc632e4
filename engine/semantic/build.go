package semantic

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/pkg/fn"
)

// BuildOptions configures index construction.
type BuildOptions struct {
	Workers   int        // concurrent embed calls
	RateLimit rate.Limit // embed calls per second; rate.Inf disables pacing
	Burst     int
	Model     string // recorded in Meta
}

// DefaultBuildOptions returns sensible defaults.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Workers:   4,
		RateLimit: rate.Inf,
		Burst:     1,
	}
}

// Build embeds every document and returns a ready index. It fails with
// ErrIndexBuild when docs is empty or any embedding fails; no partial index
// is ever returned.
func Build(ctx context.Context, emb Embedder, docs []Document, opts BuildOptions) (*Index, error) {
	if len(docs) == 0 {
		return nil, domain.Fail("semantic.Build", domain.ErrIndexBuild)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = rate.Inf
	}
	lim := rate.NewLimiter(opts.RateLimit, opts.Burst)

	vecs, err := fn.ParCollect(ctx, docs, opts.Workers, func(ctx context.Context, d Document) fn.Result[[]float32] {
		if err := lim.Wait(ctx); err != nil {
			return fn.Err[[]float32](err)
		}
		vec, err := emb.Embed(ctx, d.Text)
		if err != nil {
			return fn.Err[[]float32](domain.Wrap("embed "+d.ID, domain.ErrEmbedding, err))
		}
		return fn.Ok(vec)
	}).Unwrap()
	if err != nil {
		return nil, domain.Wrap("semantic.Build", domain.ErrIndexBuild, err)
	}

	ix, err := New(Meta{Model: opts.Model, BuiltAt: time.Now().UTC()}, docs, vecs)
	if err != nil {
		return nil, domain.Wrap("semantic.Build", domain.ErrIndexBuild, err)
	}
	return ix, nil
}

// String summarises the index for logs.
func (ix *Index) String() string {
	if ix == nil {
		return "semantic.Index(nil)"
	}
	return fmt.Sprintf("semantic.Index(docs=%d dims=%d fp=%.12s)", len(ix.docs), ix.meta.Dimensions, ix.meta.Fingerprint)
}
