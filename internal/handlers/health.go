package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ReadinessChecker reports per-dependency status strings; "ok" and
// "disabled" count as ready.
type ReadinessChecker interface {
	Ready(ctx context.Context) map[string]string
}

type HealthHandler struct {
	startTime time.Time
	version   string
	checker   ReadinessChecker
}

func NewHealthHandler(version string, checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		checker:   checker,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "stock-forecast-api",
		"version": h.version,
		"uptime":  time.Since(h.startTime).String(),
		"time":    time.Now(),
	})
}

// Ready handles GET /health/ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	if h.checker != nil {
		for name, state := range h.checker.Ready(ctx) {
			checks[name] = state
		}
	}

	status, code := "ready", fiber.StatusOK
	for _, state := range checks {
		if state != "ok" && state != "disabled" {
			status, code = "degraded", fiber.StatusServiceUnavailable
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
