package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/storage/postgres"
)

// Version is reported by /health/info.
const Version = "0.1.0"

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	backend string
	pool    *postgres.Pool
}

// NewHealthHandler creates a new health handler.
// pool is nil for the in-memory backend.
func NewHealthHandler(backend string, pool *postgres.Pool) *HealthHandler {
	return &HealthHandler{backend: backend, pool: pool}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles the readiness probe. The in-memory backend has nothing to check.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{"storage": h.backend}
	status := http.StatusOK
	if h.pool != nil {
		if err := h.pool.Ping(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "error"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	info := gin.H{
		"app":     "stockledger",
		"version": Version,
		"backend": h.backend,
	}
	if h.pool != nil {
		info["database"] = h.pool.Stats()
	}
	c.JSON(http.StatusOK, info)
}
