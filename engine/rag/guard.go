package rag

import (
	"context"

	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/resilience"
)

// GuardedCompleter fails fast with resilience.ErrCircuitOpen while the
// completion backend keeps failing. It never retries.
type GuardedCompleter struct {
	Completer
	breaker *resilience.Breaker
}

// GuardCompleter wraps c with b.
func GuardCompleter(c Completer, b *resilience.Breaker) *GuardedCompleter {
	return &GuardedCompleter{Completer: c, breaker: b}
}

func (g *GuardedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Completer.Complete(ctx, prompt)
		return err
	})
	return out, err
}

// GuardedEmbedder is the embedding counterpart of GuardedCompleter.
type GuardedEmbedder struct {
	semantic.Embedder
	breaker *resilience.Breaker
}

// GuardEmbedder wraps e with b.
func GuardEmbedder(e semantic.Embedder, b *resilience.Breaker) *GuardedEmbedder {
	return &GuardedEmbedder{Embedder: e, breaker: b}
}

func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Embedder.Embed(ctx, text)
		return err
	})
	return out, err
}
