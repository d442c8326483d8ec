package llmadapter

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/roundslab/rounds/engine/core"
)

// RateLimiterConfig throttles outbound generation calls. Zero values
// disable the corresponding limit.
type RateLimiterConfig struct {
	Enabled           bool
	Concurrency       int64
	RequestsPerMinute float64
	Burst             int
}

// RateLimiter bounds concurrency and request rate per provider. Limiters
// are shared process-wide so parallel turns observe the same ceilings.
type RateLimiter struct {
	cfg      RateLimiterConfig
	limiters sync.Map // lower-cased provider name -> *providerLimiter
}

// RateLimiterSnapshot exposes counters for observability and tests.
type RateLimiterSnapshot struct {
	ActiveRequests int32
	TotalRequests  int64
}

type providerLimiter struct {
	sem    *semaphore.Weighted
	bucket *rate.Limiter

	active atomic.Int32
	total  atomic.Int64
}

// NewRateLimiter builds a limiter from config. A disabled config yields a
// limiter whose Acquire/Release are no-ops.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg}
}

// Acquire blocks until a slot and a rate token are available, or ctx ends.
func (r *RateLimiter) Acquire(ctx context.Context, provider core.ProviderName) error {
	limiter := r.limiterFor(provider)
	if limiter == nil {
		return nil
	}
	limiter.total.Add(1)
	if limiter.sem != nil {
		if err := limiter.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	if limiter.bucket != nil {
		if err := limiter.bucket.Wait(ctx); err != nil {
			if limiter.sem != nil {
				limiter.sem.Release(1)
			}
			return err
		}
	}
	limiter.active.Add(1)
	return nil
}

// Release frees the slot taken by a successful Acquire.
func (r *RateLimiter) Release(provider core.ProviderName) {
	value, ok := r.limiters.Load(key(provider))
	if !ok {
		return
	}
	limiter := value.(*providerLimiter)
	limiter.active.Add(-1)
	if limiter.sem != nil {
		limiter.sem.Release(1)
	}
}

// Snapshot returns current counters for the provider, if it has a limiter.
func (r *RateLimiter) Snapshot(provider core.ProviderName) (RateLimiterSnapshot, bool) {
	value, ok := r.limiters.Load(key(provider))
	if !ok {
		return RateLimiterSnapshot{}, false
	}
	limiter := value.(*providerLimiter)
	return RateLimiterSnapshot{
		ActiveRequests: limiter.active.Load(),
		TotalRequests:  limiter.total.Load(),
	}, true
}

func (r *RateLimiter) limiterFor(provider core.ProviderName) *providerLimiter {
	if r == nil || !r.cfg.Enabled || provider == "" {
		return nil
	}
	k := key(provider)
	if existing, ok := r.limiters.Load(k); ok {
		return existing.(*providerLimiter)
	}
	limiter := &providerLimiter{}
	if r.cfg.Concurrency > 0 {
		limiter.sem = semaphore.NewWeighted(r.cfg.Concurrency)
	}
	if r.cfg.RequestsPerMinute > 0 {
		burst := r.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter.bucket = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerMinute/60), burst)
	}
	actual, _ := r.limiters.LoadOrStore(k, limiter)
	return actual.(*providerLimiter)
}

func key(provider core.ProviderName) string {
	return strings.ToLower(string(provider))
}
