package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/sitesnap/internal/logger"
)

// RequestLogger writes one structured line per request. It must run after the
// requestid middleware.
func RequestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		ctx := log.WithRequestID(c.UserContext(), c.GetRespHeader(fiber.HeaderXRequestID))
		ctx = log.WithFields(ctx, map[string]any{
			"method": c.Method(),
			"path":   c.Path(),
		})
		c.SetUserContext(ctx)

		settle(c, c.Next())

		ctx = log.WithFields(c.UserContext(), map[string]any{
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		log.Info(ctx, "request.complete")
		return nil
	}
}
