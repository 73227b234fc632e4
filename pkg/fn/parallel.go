package fn

import (
	"context"
	"sync"
)

// ParCollect applies f to every item with at most workers calls in flight
// and returns the values in input order. The first failure cancels the
// context passed to calls still running and stops dispatch; that failure is
// the returned error. workers <= 0 means one goroutine per item.
func ParCollect[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) Result[U]) Result[[]U] {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	out := make([]U, len(items))
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}
	if workers == 0 {
		return Ok(out)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
dispatch:
	for i, v := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		wg.Add(1)
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			val, err := f(ctx, v).Unwrap()
			if err != nil {
				cancel(err)
				return
			}
			out[i] = val
		}(i, v)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return Err[[]U](context.Cause(ctx))
	}
	return Ok(out)
}
