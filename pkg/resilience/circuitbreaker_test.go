package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errModelDown = errors.New("ollama: 503 Service Unavailable")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerOpts{Name: "embedder", FailThreshold: threshold, Timeout: timeout})
	b.clock = clk.now
	return b, clk
}

func failing(context.Context) error { return errModelDown }
func healthy(context.Context) error { return nil }

func TestBreaker_OpensOnConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	for i := 0; i < 2; i++ {
		if err := b.Call(context.Background(), failing); !errors.Is(err, errModelDown) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("opened early: %v", b.State())
	}
	_ = b.Call(context.Background(), failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Call(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let a call through: err=%v called=%v", err, called)
	}
}

func TestBreaker_SuccessClearsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, failing)
		_ = b.Call(ctx, healthy)
	}
	if b.State() != StateClosed {
		t.Fatalf("interleaved failures opened the breaker: %v", b.State())
	}
}

func TestBreaker_ProbeAfterTimeout(t *testing.T) {
	cases := []struct {
		name  string
		probe func(context.Context) error
		want  State
	}{
		{"probe succeeds", healthy, StateClosed},
		{"probe fails", failing, StateOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, clk := newTestBreaker(1, 10*time.Second)
			_ = b.Call(context.Background(), failing)

			clk.advance(9 * time.Second)
			if b.State() != StateOpen {
				t.Fatalf("state before timeout = %v", b.State())
			}
			clk.advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state after timeout = %v", b.State())
			}
			_ = b.Call(context.Background(), tc.probe)
			if b.State() != tc.want {
				t.Fatalf("state after probe = %v, want %v", b.State(), tc.want)
			}
		})
	}
}

func TestBreaker_HalfOpenAdmitsLimitedProbes(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)
	_ = b.Call(context.Background(), failing)
	clk.advance(time.Second)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(context.Background(), func(context.Context) error { <-release; return nil })
	}()
	// wait for the probe to be admitted
	for b.State() == StateHalfOpen {
		b.mu.Lock()
		n := b.probes
		b.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := b.Call(context.Background(), healthy); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe err = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v", b.State())
	}
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v", b.State())
	}
}

func TestBreaker_ReportsTransitions(t *testing.T) {
	var seen []string
	b, clk := newTestBreaker(1, time.Second)
	b.opts.OnStateChange = func(name string, from, to State) {
		seen = append(seen, name+" "+from.String()+"->"+to.String())
	}

	_ = b.Call(context.Background(), failing)
	clk.advance(2 * time.Second)
	_ = b.Call(context.Background(), healthy)

	want := []string{"embedder closed->open", "embedder open->half-open", "embedder half-open->closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %q", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestNewBreaker_FillsDefaults(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	if b.opts.FailThreshold != 5 || b.opts.Timeout != 30*time.Second || b.opts.HalfOpenMax != 1 {
		t.Fatalf("opts = %+v", b.opts)
	}
	if State(7).String() != "unknown" {
		t.Error("out of range state has a name")
	}
}
