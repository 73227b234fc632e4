// Package fn holds the small generic toolkit the build pipeline is written
// in: a Result type, composable context-aware stages, and bounded
// parallelism.
package fn

// Result carries the outcome of one pipeline step. A Result with a nil
// error is a success.
type Result[T any] struct {
	val T
	err error
}

func Ok[T any](v T) Result[T]        { return Result[T]{val: v} }
func Err[T any](err error) Result[T] { return Result[T]{err: err} }

// FromPair lifts a conventional (value, error) return.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Must panics on a failed Result. Tests use it to keep assertions short.
func (r Result[T]) Must() T {
	if r.err != nil {
		panic(r.err)
	}
	return r.val
}
