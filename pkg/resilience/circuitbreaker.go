// Package resilience provides the circuit breaker that guards remote model
// calls and the token buckets behind the API rate limit.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a Breaker.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probes may pass
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker. Zero fields take DefaultBreakerOpts.
type BreakerOpts struct {
	Name          string
	FailThreshold int           // consecutive failures that open the breaker
	Timeout       time.Duration // time spent open before probing
	HalfOpenMax   int           // probes allowed while half-open

	// OnStateChange runs after each transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker stops calling a failing remote for a while. It never retries: a
// failed or rejected call is returned to the caller as is.
type Breaker struct {
	opts  BreakerOpts
	clock func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time
	pending  []transition
}

type transition struct{ from, to State }

func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, clock: time.Now}
}

// State reports the current state, moving an expired open breaker to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	b.expire()
	st := b.state
	b.unlock()
	return st
}

// Call runs f unless the breaker is open or out of half-open probes.
// Cancellation of ctx is not counted as a failure.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := f(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.unlock()
	b.expire()
	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.probes >= b.opts.HalfOpenMax {
			return false
		}
		b.probes++
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.unlock()
	switch {
	case err == nil:
		b.failures = 0
		b.moveTo(StateClosed)
	case errors.Is(err, context.Canceled):
		if b.state == StateHalfOpen && b.probes > 0 {
			b.probes--
		}
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.failures = 0
			b.probes = 0
			b.openedAt = b.clock()
			b.moveTo(StateOpen)
		}
	}
}

// expire must be called with mu held.
func (b *Breaker) expire() {
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.opts.Timeout {
		b.probes = 0
		b.moveTo(StateHalfOpen)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	b.pending = append(b.pending, transition{b.state, to})
	b.state = to
}

// unlock releases mu and then reports queued transitions.
func (b *Breaker) unlock() {
	trs := b.pending
	b.pending = nil
	b.mu.Unlock()
	if b.opts.OnStateChange == nil {
		return
	}
	for _, t := range trs {
		b.opts.OnStateChange(b.opts.Name, t.from, t.to)
	}
}
