package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/cache"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/metrics"
)

// RateLimitStore counts hits per key within a window.
type RateLimitStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy defines the throttling parameters for a traffic surface.
type RateLimitPolicy struct {
	name          string
	window        time.Duration
	ipLimit       int
	identityLimit int
}

// NewRateLimitPolicy builds a policy. identityLimit applies per email or
// phone found in the JSON body.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, identityLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:          strings.ToLower(strings.TrimSpace(name)),
		window:        window,
		ipLimit:       ipLimit,
		identityLimit: identityLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.identityLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "auth"
	}
	return p.name
}

// AuthRateLimit enforces per-IP and per-identity counters. A nil store
// disables it.
func AuthRateLimit(policy RateLimitPolicy, store RateLimitStore, log *logger.Logger, m *metrics.Metrics) fiber.Handler {
	if !policy.enabled() || store == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if log == nil {
		log = logger.Nop()
	}

	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if policy.ipLimit > 0 {
			ip := c.IP()
			key := cache.Key("rl", "ip", policy.normalizedName(), ip)
			allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.ipLimit))
			if err != nil {
				return apperr.Wrap(apperr.CodeDependency, err, "rate limiting")
			}
			if !allowed {
				return rateLimited(ctx, log, m, policy, "ip", count, policy.ipLimit)
			}
		}

		if policy.identityLimit > 0 {
			if identity := extractIdentity(c.Body()); identity != "" {
				key := cache.Key("rl", "identity", policy.normalizedName(), hashValue(identity))
				allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.identityLimit))
				if err != nil {
					return apperr.Wrap(apperr.CodeDependency, err, "rate limiting")
				}
				if !allowed {
					return rateLimited(ctx, log, m, policy, "identity", count, policy.identityLimit)
				}
			}
		}

		return c.Next()
	}
}

func allow(ctx context.Context, store RateLimitStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func rateLimited(ctx context.Context, log *logger.Logger, m *metrics.Metrics, policy RateLimitPolicy, scope string, count int64, limit int) error {
	logCtx := log.WithFields(ctx, map[string]any{
		"scope":          scope,
		"policy":         policy.normalizedName(),
		"attempts":       count,
		"limit":          limit,
		"window_seconds": int(policy.window.Seconds()),
	})
	log.Warn(logCtx, "auth.rate_limit.blocked")
	if m != nil {
		m.RateLimited.WithLabelValues(policy.normalizedName(), scope).Inc()
	}
	return apperr.New(apperr.CodeRateLimit, "rate limit exceeded")
}

func extractIdentity(payload []byte) string {
	var body struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if email := strings.ToLower(strings.TrimSpace(body.Email)); email != "" {
		return email
	}
	return strings.ReplaceAll(strings.TrimSpace(body.Phone), " ", "")
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
