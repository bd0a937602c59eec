package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/database"
)

// Pinger is anything whose liveness can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    *gorm.DB
	cache Pinger
}

// NewHealthHandler builds the health probe. cache may be nil when Redis is
// not configured.
func NewHealthHandler(db *gorm.DB, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.StatusOK
	checks := fiber.Map{"database": "ok", "redis": "disabled"}

	if err := database.Ping(h.db); err != nil {
		status = fiber.StatusServiceUnavailable
		checks["database"] = "unavailable"
	}
	if h.cache != nil {
		checks["redis"] = "ok"
		if err := h.cache.Ping(c.UserContext()); err != nil {
			status = fiber.StatusServiceUnavailable
			checks["redis"] = "unavailable"
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"success": status == fiber.StatusOK,
		"data":    checks,
	})
}
