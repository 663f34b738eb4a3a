package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DBPinger reports database reachability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// PoolStats reports worker pool health.
type PoolStats interface {
	Healthy() bool
	Active() int
}

// HealthHandler serves the liveness/readiness probe.
type HealthHandler struct {
	db   DBPinger
	pool PoolStats
}

func NewHealthHandler(db DBPinger, pool PoolStats) *HealthHandler {
	return &HealthHandler{db: db, pool: pool}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Check)
}

// Check reports overall service health. Degraded dependencies yield 503 so
// orchestrators stop routing traffic here.
func (h *HealthHandler) Check(c echo.Context) error {
	dbStatus := "up"
	healthy := true
	if err := h.db.Ping(c.Request().Context()); err != nil {
		dbStatus = "down"
		healthy = false
	}

	workers := map[string]any{
		"healthy": h.pool.Healthy(),
		"active":  h.pool.Active(),
	}
	if !h.pool.Healthy() {
		healthy = false
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status":   status,
		"database": dbStatus,
		"workers":  workers,
	})
}
