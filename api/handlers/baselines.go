package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/internal/baseline"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type SnapshotSource interface {
	Current() *baseline.Snapshot
}

// RecomputeTrigger starts a baseline recompute without waiting for it.
type RecomputeTrigger func() error

type BaselineHandler struct {
	snapshots SnapshotSource
	recompute RecomputeTrigger
}

func NewBaselineHandler(snapshots SnapshotSource, recompute RecomputeTrigger) *BaselineHandler {
	return &BaselineHandler{snapshots: snapshots, recompute: recompute}
}

type BaselinesResponse struct {
	Version    int64             `json:"version"`
	ComputedAt time.Time         `json:"computed_at"`
	Baselines  []models.Baseline `json:"baselines"`
	Count      int               `json:"count"`
}

type RecomputeResponse struct {
	Status         string `json:"status"`
	CurrentVersion int64  `json:"current_version"`
}

// List godoc
// @Summary List baselines
// @Description Baselines of the current snapshot, ordered by key
// @Tags Baselines
// @Produce json
// @Security BearerAuth
// @Param service query string false "Service name"
// @Param metric query string false "request_count, error_rate, p95_latency_ms or distinct_sources"
// @Success 200 {object} BaselinesResponse
// @Failure 400 {object} ErrorResponse "Unknown metric"
// @Router /baselines [get]
func (h *BaselineHandler) List(c *gin.Context) {
	service := c.Query("service")
	var metric models.Metric
	if s := c.Query("metric"); s != "" {
		m, err := models.ParseMetric(s)
		if err != nil {
			respondError(c, err)
			return
		}
		metric = m
	}

	snap := h.snapshots.Current()
	out := []models.Baseline{}
	for _, b := range snap.Baselines() {
		if service != "" && b.Key.Service != service {
			continue
		}
		if metric != "" && b.Key.Metric != metric {
			continue
		}
		out = append(out, b)
	}

	c.JSON(http.StatusOK, BaselinesResponse{
		Version:    snap.Version,
		ComputedAt: snap.ComputedAt,
		Baselines:  out,
		Count:      len(out),
	})
}

// Recompute godoc
// @Summary Recompute baselines
// @Description Schedules a recompute outside the regular interval. The new snapshot is published when it completes.
// @Tags Baselines
// @Produce json
// @Security BearerAuth
// @Success 202 {object} RecomputeResponse
// @Failure 429 {object} ErrorResponse "Too many requests"
// @Router /baselines/recompute [post]
func (h *BaselineHandler) Recompute(c *gin.Context) {
	if err := h.recompute(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, RecomputeResponse{
		Status:         "scheduled",
		CurrentVersion: h.snapshots.Current().Version,
	})
}
