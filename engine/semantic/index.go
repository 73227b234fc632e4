package semantic

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/carenav/carenav/engine/domain"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is an immutable set of (embedding, document) pairs in insertion
// order. It is safe for concurrent readers.
type Index struct {
	meta  Meta
	docs  []Document
	vecs  [][]float32
	norms []float64
}

// New assembles an index from already-embedded documents. vecs[i] must be
// the embedding of docs[i].
func New(meta Meta, docs []Document, vecs [][]float32) (*Index, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("semantic: new: no documents")
	}
	if len(docs) != len(vecs) {
		return nil, fmt.Errorf("semantic: new: %d documents but %d vectors", len(docs), len(vecs))
	}
	dims := len(vecs[0])
	if dims == 0 {
		return nil, fmt.Errorf("semantic: new: empty embedding")
	}
	norms := make([]float64, len(vecs))
	for i, v := range vecs {
		if len(v) != dims {
			return nil, fmt.Errorf("semantic: new: vector %d has %d dimensions, want %d", i, len(v), dims)
		}
		norms[i] = norm(v)
	}
	meta.Dimensions = dims
	if meta.Fingerprint == "" {
		meta.Fingerprint = Fingerprint(docs)
	}
	return &Index{meta: meta, docs: docs, vecs: vecs, norms: norms}, nil
}

// Len returns the number of indexed documents. A nil index has none.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.docs)
}

// Meta returns the build metadata.
func (ix *Index) Meta() Meta { return ix.meta }

// Documents returns a copy of the indexed documents in insertion order.
func (ix *Index) Documents() []Document {
	return slices.Clone(ix.docs)
}

// Query embeds text and returns the k closest documents.
func (ix *Index) Query(ctx context.Context, emb Embedder, text string, k int) ([]Hit, error) {
	if ix.Len() == 0 {
		return nil, domain.Fail("semantic.Query", domain.ErrIndexNotReady)
	}
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		return nil, domain.Wrap("semantic.Query", domain.ErrEmbedding, err)
	}
	if len(vec) != ix.meta.Dimensions {
		return nil, domain.Wrap("semantic.Query", domain.ErrEmbedding,
			fmt.Errorf("query vector has %d dimensions, index has %d", len(vec), ix.meta.Dimensions))
	}
	return ix.Search(vec, k), nil
}

// Search ranks every document by cosine similarity to vec and returns at most
// k of them. Equal scores keep insertion order. k <= 0 means DefaultTopK.
func (ix *Index) Search(vec []float32, k int) []Hit {
	if ix.Len() == 0 || len(vec) != ix.meta.Dimensions {
		return nil
	}
	if k <= 0 {
		k = domain.DefaultTopK
	}
	qn := norm(vec)

	order := make([]int, len(ix.docs))
	scores := make([]float64, len(ix.docs))
	for i := range ix.docs {
		order[i] = i
		scores[i] = cosine(vec, qn, ix.vecs[i], ix.norms[i])
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})

	k = min(k, len(order))
	hits := make([]Hit, k)
	for i, idx := range order[:k] {
		hits[i] = Hit{Document: ix.docs[idx], Score: scores[idx]}
	}
	return hits
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosine returns 0 for zero vectors.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
