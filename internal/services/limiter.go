package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/example/sitesnap/internal/cache"
)

// AttemptLimiter tracks failed verification attempts per identity.
type AttemptLimiter interface {
	Blocked(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type counterStore interface {
	GetInt(ctx context.Context, key string) (int64, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisAttemptLimiter blocks an identity after max failures inside window.
type RedisAttemptLimiter struct {
	store  counterStore
	max    int64
	window time.Duration
}

func NewRedisAttemptLimiter(store counterStore, max int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{store: store, max: int64(max), window: window}
}

func (l *RedisAttemptLimiter) key(identity string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identity))))
	return cache.Key("otp_attempts", hex.EncodeToString(sum[:]))
}

func (l *RedisAttemptLimiter) Blocked(ctx context.Context, identity string) (bool, error) {
	if l.max <= 0 {
		return false, nil
	}
	n, err := l.store.GetInt(ctx, l.key(identity))
	if err != nil {
		return false, err
	}
	return n >= l.max, nil
}

func (l *RedisAttemptLimiter) Fail(ctx context.Context, identity string) error {
	_, err := l.store.IncrWithTTL(ctx, l.key(identity), l.window)
	return err
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, identity string) error {
	return l.store.Del(ctx, l.key(identity))
}

// NoopAttemptLimiter never blocks. Used when redis is not configured.
type NoopAttemptLimiter struct{}

func (NoopAttemptLimiter) Blocked(context.Context, string) (bool, error) { return false, nil }
func (NoopAttemptLimiter) Fail(context.Context, string) error            { return nil }
func (NoopAttemptLimiter) Reset(context.Context, string) error           { return nil }
