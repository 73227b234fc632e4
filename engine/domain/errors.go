package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidQuery   = errors.New("invalid query")
	ErrInvalidDoctor  = errors.New("invalid doctor")
	ErrQueryTooShort  = errors.New("query too short")
	ErrQueryTooLong   = errors.New("query too long")
	ErrQueryInjection = errors.New("query contains suspicious content")
	ErrEmptyField     = errors.New("required field is empty")
	ErrNegativeYears  = errors.New("experience years must be non-negative")
)

// Pipeline error kinds. Callers match with errors.Is.
var (
	ErrIndexBuild        = errors.New("index build failed")
	ErrIndexLoad         = errors.New("index load failed")
	ErrStorage           = errors.New("index storage failed")
	ErrIndexNotReady     = errors.New("index not ready")
	ErrEmbedding         = errors.New("embedding failed")
	ErrCompletion        = errors.New("completion failed")
	ErrStore             = errors.New("record store failed")
	ErrRebuild           = errors.New("index rebuild failed")
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// OpError tags a failure from a pipeline operation with one of the kind
// sentinels above while keeping the underlying cause reachable.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns an *OpError of the given kind, or nil when err is nil.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Fail returns an *OpError of the given kind without an underlying cause.
func Fail(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// KindOf reports which pipeline kind err carries, or nil if none. Any
// *ValidationError reports as ErrInvalidQuery.
func KindOf(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrInvalidQuery
	}
	for _, k := range []error{
		ErrRebuildInProgress, ErrRebuild, ErrIndexBuild, ErrIndexLoad, ErrStorage,
		ErrIndexNotReady, ErrEmbedding, ErrCompletion, ErrStore, ErrInvalidQuery,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
