package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// readyTimeout bounds each readiness check so a hung database fails the probe.
const readyTimeout = 2 * time.Second

// Pinger checks a dependency. *postgres.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler takes the dependencies readiness depends on, by name.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready. Any failing check makes it a 503.
func (h *HealthHandler) Ready(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		err := h.checks[name].Ping(ctx)
		cancel()
		if err != nil {
			results[name] = "unhealthy: " + err.Error()
			status, code = "error", http.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}
