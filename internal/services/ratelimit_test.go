package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64), expires: make(map[string]time.Duration)}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) ExpireNX(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRateLimitService(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Window: time.Minute, ClientLimit: 2, AdminLimit: 1}
	fixed := time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)

	t.Run("CountsPerWindow", func(t *testing.T) {
		store := newFakeCounter()
		rl := NewRateLimitService(store, cfg, testLogger())
		rl.now = func() time.Time { return fixed }

		allowed, info, err := rl.IsAllowed(context.Background(), "shop", models.RoleClient)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 1, info.Remaining)
		assert.Equal(t, fixed.Truncate(time.Minute).Add(time.Minute).Unix(), info.ResetTime)

		allowed, _, _ = rl.IsAllowed(context.Background(), "shop", models.RoleClient)
		assert.True(t, allowed)

		allowed, info, _ = rl.IsAllowed(context.Background(), "shop", models.RoleClient)
		assert.False(t, allowed)
		assert.Equal(t, 0, info.Remaining)
		assert.Len(t, store.expires, 1)

		rl.now = func() time.Time { return fixed.Add(time.Minute) }
		allowed, _, _ = rl.IsAllowed(context.Background(), "shop", models.RoleClient)
		assert.True(t, allowed, "a new window starts from zero")
	})

	t.Run("AdminLimit", func(t *testing.T) {
		rl := NewRateLimitService(newFakeCounter(), cfg, testLogger())
		rl.now = func() time.Time { return fixed }

		allowed, info, _ := rl.IsAllowed(context.Background(), "ops", models.RoleAdmin)
		assert.True(t, allowed)
		assert.Equal(t, 1, info.Limit)
		allowed, _, _ = rl.IsAllowed(context.Background(), "ops", models.RoleAdmin)
		assert.False(t, allowed)
	})

	t.Run("FailsOpen", func(t *testing.T) {
		store := newFakeCounter()
		store.err = errors.New("connection refused")
		rl := NewRateLimitService(store, cfg, testLogger())

		allowed, _, err := rl.IsAllowed(context.Background(), "shop", models.RoleClient)
		assert.Error(t, err)
		assert.True(t, allowed)
	})
}
