package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/doctracker/internal/monitoring"
	"github.com/charlesng35/doctracker/internal/reminders"
	"github.com/charlesng35/doctracker/pkg/response"
)

const readinessTimeout = 5 * time.Second

// Health returns a simple status payload useful for liveness checks.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// HealthHandler reports whether the service can reach its dependencies.
type HealthHandler struct {
	manager *monitoring.HealthManager
	engine  *reminders.Engine
}

// NewHealthHandler constructs a readiness handler. engine may be nil.
func NewHealthHandler(manager *monitoring.HealthManager, engine *reminders.Engine) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager, engine: engine}
}

// Ready evaluates the readiness probes and attaches the last reminder run summary.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(requestContext(c), readinessTimeout)
	defer cancel()

	report := h.manager.Evaluate(ctx)
	payload := gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	}
	if h.engine != nil {
		if summary, found, err := h.engine.LastRun(ctx); err == nil && found {
			payload["last_run"] = summary
		}
	}

	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, payload)
}
