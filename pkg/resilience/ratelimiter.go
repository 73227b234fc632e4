package resilience

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts sizes each client's token bucket.
type LimiterOpts struct {
	Rate  float64 // tokens per second
	Burst int     // bucket capacity
}

// KeyedLimiter keeps one token bucket per key, usually a client address.
// Prune drops buckets that have refilled, so idle clients cost nothing.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &KeyedLimiter{
		limit:   rate.Limit(opts.Rate),
		burst:   opts.Burst,
		now:     time.Now,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow spends one token from key's bucket and reports whether there was one.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	b, ok := k.buckets[key]
	if !ok {
		b = rate.NewLimiter(k.limit, k.burst)
		k.buckets[key] = b
	}
	k.mu.Unlock()
	return b.AllowN(k.now(), 1)
}

// Prune forgets full buckets and returns how many are left.
func (k *KeyedLimiter) Prune() int {
	now := k.now()
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, b := range k.buckets {
		if b.TokensAt(now) >= float64(k.burst) {
			delete(k.buckets, key)
		}
	}
	return len(k.buckets)
}
