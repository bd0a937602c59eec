package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCounters struct {
	values map[string]int64
	ttls   map[string]time.Duration
}

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{values: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCounters) GetInt(_ context.Context, key string) (int64, error) {
	return m.values[key], nil
}

func (m *memoryCounters) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.values[key]++
	if m.values[key] == 1 {
		m.ttls[key] = ttl
	}
	return m.values[key], nil
}

func (m *memoryCounters) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisAttemptLimiter(t *testing.T) {
	store := newMemoryCounters()
	limiter := NewRedisAttemptLimiter(store, 2, time.Minute)
	ctx := context.Background()

	blocked, err := limiter.Blocked(ctx, "email:a@x.com")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, limiter.Fail(ctx, "email:a@x.com"))
	require.NoError(t, limiter.Fail(ctx, " EMAIL:A@x.com "))

	blocked, err = limiter.Blocked(ctx, "email:a@x.com")
	require.NoError(t, err)
	assert.True(t, blocked)

	for key, ttl := range store.ttls {
		assert.NotContains(t, key, "a@x.com")
		assert.Equal(t, time.Minute, ttl)
	}

	require.NoError(t, limiter.Reset(ctx, "email:a@x.com"))
	blocked, err = limiter.Blocked(ctx, "email:a@x.com")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRedisAttemptLimiterDisabledWhenMaxZero(t *testing.T) {
	limiter := NewRedisAttemptLimiter(newMemoryCounters(), 0, time.Minute)
	ctx := context.Background()
	require.NoError(t, limiter.Fail(ctx, "k"))
	blocked, err := limiter.Blocked(ctx, "k")
	require.NoError(t, err)
	assert.False(t, blocked)
}
