package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/internal/orchestrator"
)

type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

type StatusProvider interface {
	Status() orchestrator.Status
}

type HealthHandler struct {
	ready  ReadinessChecker
	status StatusProvider
}

func NewHealthHandler(ready ReadinessChecker, status StatusProvider) *HealthHandler {
	return &HealthHandler{ready: ready, status: status}
}

type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp"`
	Checks    map[string]string    `json:"checks,omitempty"`
	Engine    *orchestrator.Status `json:"engine,omitempty"`
}

// Health godoc
// @Summary Engine health
// @Description Dependency checks plus ingest, baseline, model and outbox status. Degraded while the metric source is failing.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if err := h.ready.Ready(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		checks["database"] = "healthy"
	}

	var engine *orchestrator.Status
	if h.status != nil {
		st := h.status.Status()
		engine = &st
		checks["source"] = st.SourceCircuit
		if st.Ingest.LastError != "" {
			checks["ingest"] = st.Ingest.LastError
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["ingest"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Engine:    engine,
	})
}

// Ready godoc
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.ready.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    map[string]string{"database": err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
