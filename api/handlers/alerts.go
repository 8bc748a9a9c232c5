package handlers

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type AlertLister interface {
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
}

type AlertHandler struct {
	alerts AlertLister
	limits Limits
	clock  clock.Clock
}

func NewAlertHandler(alerts AlertLister, limits Limits, clk clock.Clock) *AlertHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &AlertHandler{alerts: alerts, limits: limits, clock: clk}
}

type ListAlertsResponse struct {
	Alerts []*models.Alert `json:"alerts"`
	Count  int             `json:"count"`
}

func parseAlertStatus(s string) (models.AlertStatus, bool) {
	switch models.AlertStatus(s) {
	case models.AlertPending, models.AlertSent, models.AlertFailed, models.AlertDropped:
		return models.AlertStatus(s), true
	}
	return "", false
}

// List godoc
// @Summary List alerts
// @Description Notifications newest first, optionally for one anomaly
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Param anomaly_id query string false "Anomaly ID"
// @Param status query string false "pending, sent, failed or dropped"
// @Param severity query string false "info, warning or critical"
// @Param from query string false "Created at or after"
// @Param range query string false "Lookback such as 24h or 7d"
// @Param limit query int false "Maximum results"
// @Success 200 {object} ListAlertsResponse
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Router /alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	var filter models.AlertFilter
	var err error

	from, _, err := timeWindow(c, h.clock.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	filter.From = from
	filter.AnomalyID = c.Query("anomaly_id")

	if s := c.Query("status"); s != "" {
		status, ok := parseAlertStatus(s)
		if !ok {
			badRequest(c, "unknown alert status %q", s)
			return
		}
		filter.Status = status
	}
	if s := c.Query("severity"); s != "" {
		if filter.Severity, err = models.ParseSeverity(s); err != nil {
			respondError(c, err)
			return
		}
	}
	if filter.Limit, err = h.limits.parse(c); err != nil {
		respondError(c, err)
		return
	}

	alerts, err := h.alerts.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	c.JSON(http.StatusOK, ListAlertsResponse{Alerts: alerts, Count: len(alerts)})
}
