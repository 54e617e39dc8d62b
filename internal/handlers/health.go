package handlers

import (
	"github.com/gofiber/fiber/v2"

	"seshtrack/internal/database"
	"seshtrack/internal/services"
)

// HealthHandler reports liveness of the backing stores
type HealthHandler struct {
	db    *database.MongoDB
	redis *services.RedisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Check returns 200 when the stores answer, 503 otherwise
// GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok"}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(c.Context()); err != nil {
			status["mongodb"] = "down"
			healthy = false
		} else {
			status["mongodb"] = "up"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			status["redis"] = "down"
			healthy = false
		} else {
			status["redis"] = "up"
		}
	}

	if !healthy {
		status["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}
