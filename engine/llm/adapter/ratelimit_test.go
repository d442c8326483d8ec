package llmadapter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundslab/rounds/engine/core"
)

func TestRateLimiter(t *testing.T) {
	t.Run("Should be a no-op when disabled", func(t *testing.T) {
		limiter := NewRateLimiter(RateLimiterConfig{Enabled: false, Concurrency: 1})
		require.NoError(t, limiter.Acquire(context.Background(), core.ProviderOpenAI))
		require.NoError(t, limiter.Acquire(context.Background(), core.ProviderOpenAI))
		_, tracked := limiter.Snapshot(core.ProviderOpenAI)
		assert.False(t, tracked)
	})

	t.Run("Should cap concurrent requests per provider", func(t *testing.T) {
		limiter := NewRateLimiter(RateLimiterConfig{Enabled: true, Concurrency: 2})
		var peak, active atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !assert.NoError(t, limiter.Acquire(context.Background(), core.ProviderOpenAI)) {
					return
				}
				now := active.Add(1)
				for {
					current := peak.Load()
					if now <= current || peak.CompareAndSwap(current, now) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				limiter.Release(core.ProviderOpenAI)
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, peak.Load(), int32(2))
		snapshot, tracked := limiter.Snapshot(core.ProviderOpenAI)
		require.True(t, tracked)
		assert.Equal(t, int64(8), snapshot.TotalRequests)
		assert.Equal(t, int32(0), snapshot.ActiveRequests)
	})

	t.Run("Should track providers independently", func(t *testing.T) {
		limiter := NewRateLimiter(RateLimiterConfig{Enabled: true, Concurrency: 1})
		require.NoError(t, limiter.Acquire(context.Background(), core.ProviderOpenAI))
		require.NoError(t, limiter.Acquire(context.Background(), core.ProviderGroq))
		limiter.Release(core.ProviderOpenAI)
		limiter.Release(core.ProviderGroq)
		openai, _ := limiter.Snapshot(core.ProviderOpenAI)
		groq, _ := limiter.Snapshot(core.ProviderGroq)
		assert.Equal(t, int64(1), openai.TotalRequests)
		assert.Equal(t, int64(1), groq.TotalRequests)
	})

	t.Run("Should respect context cancellation while waiting", func(t *testing.T) {
		limiter := NewRateLimiter(RateLimiterConfig{Enabled: true, Concurrency: 1})
		require.NoError(t, limiter.Acquire(context.Background(), core.ProviderOpenAI))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := limiter.Acquire(ctx, core.ProviderOpenAI)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		limiter.Release(core.ProviderOpenAI)
	})

	t.Run("Should throttle by requests per minute", func(t *testing.T) {
		limiter := NewRateLimiter(RateLimiterConfig{
			Enabled:           true,
			RequestsPerMinute: 60, // one token per second after the burst
			Burst:             1,
		})
		require.NoError(t, limiter.Acquire(context.Background(), core.ProviderOpenAI))
		limiter.Release(core.ProviderOpenAI)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := limiter.Acquire(ctx, core.ProviderOpenAI)
		require.Error(t, err, "second token needs a full second, beyond the deadline")
	})
}
