package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Wait_UnderLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	assert.Equal(t, 3, rl.count)
}

func TestRateLimiter_Wait_ResetsAfterInterval(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }
	rl.lastReset = now

	require.NoError(t, rl.Wait(context.Background()))

	now = now.Add(time.Second)
	require.NoError(t, rl.Wait(context.Background()))
	assert.Equal(t, 1, rl.count)
}

func TestRateLimiter_Wait_ContextCanceled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Wait_Unlimited(t *testing.T) {
	t.Parallel()

	var nilLimiter *RateLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))

	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.NoError(t, rl.Wait(context.Background()))
	}
}
