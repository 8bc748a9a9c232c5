package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
	"github.com/CIRISAI/CIRISBridge/pkg/validation"
)

// AnomalyService is the slice of the alert manager the API drives.
type AnomalyService interface {
	List(ctx context.Context, filter models.AnomalyFilter) ([]*models.Anomaly, error)
	Get(ctx context.Context, id string) (*models.Anomaly, error)
	Acknowledge(ctx context.Context, id, actor string) (*models.Anomaly, error)
	Resolve(ctx context.Context, id, actor string) (*models.Anomaly, error)
	MarkFalsePositive(ctx context.Context, id, actor, note string) (*models.Anomaly, error)
	SubmitFeedback(ctx context.Context, id string, kind models.FeedbackType, actor, note string) (*models.Anomaly, error)
	Feedback(ctx context.Context, anomalyID string) ([]*models.Feedback, error)
}

type AnomalyHandler struct {
	service AnomalyService
	limits  Limits
	clock   clock.Clock
}

func NewAnomalyHandler(service AnomalyService, limits Limits, clk clock.Clock) *AnomalyHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &AnomalyHandler{service: service, limits: limits, clock: clk}
}

type ListAnomaliesResponse struct {
	Anomalies []*models.Anomaly `json:"anomalies"`
	Count     int               `json:"count"`
}

// TransitionRequest carries the operator for acknowledge, resolve and
// false-positive calls. All fields are optional.
type TransitionRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

type FeedbackRequest struct {
	Type  string `json:"type" binding:"required"`
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

type FeedbackListResponse struct {
	Feedback []*models.Feedback `json:"feedback"`
}

func (h *AnomalyHandler) filter(c *gin.Context) (models.AnomalyFilter, error) {
	var f models.AnomalyFilter
	var err error

	if f.From, f.To, err = timeWindow(c, h.clock.Now()); err != nil {
		return f, err
	}
	if service := c.Query("service"); service != "" {
		if err := validation.ValidateServiceName(service); err != nil {
			return f, err
		}
		f.Service = service
	}
	if s := c.Query("status"); s != "" {
		if f.Status, err = models.ParseStatus(s); err != nil {
			return f, err
		}
	}
	if s := c.Query("severity"); s != "" {
		if f.Severity, err = models.ParseSeverity(s); err != nil {
			return f, err
		}
	}
	if s := c.Query("rule"); s != "" {
		if f.RuleID, err = models.ParseRuleID(s); err != nil {
			return f, err
		}
	}
	f.Limit, err = h.limits.parse(c)
	return f, err
}

// List godoc
// @Summary List anomalies
// @Description Anomalies newest first, filtered by time window, service, status, severity and rule
// @Tags Anomalies
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start time (RFC 3339 or unix seconds)"
// @Param to query string false "End time (RFC 3339 or unix seconds)"
// @Param range query string false "Lookback such as 24h or 7d"
// @Param service query string false "Service name"
// @Param status query string false "new, acknowledged, resolved or false_positive"
// @Param severity query string false "info, warning or critical"
// @Param rule query string false "Rule id"
// @Param limit query int false "Maximum results"
// @Success 200 {object} ListAnomaliesResponse
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /anomalies [get]
func (h *AnomalyHandler) List(c *gin.Context) {
	filter, err := h.filter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	anomalies, err := h.service.List(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if anomalies == nil {
		anomalies = []*models.Anomaly{}
	}
	c.JSON(http.StatusOK, ListAnomaliesResponse{Anomalies: anomalies, Count: len(anomalies)})
}

// Get godoc
// @Summary Get an anomaly
// @Tags Anomalies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Anomaly ID"
// @Success 200 {object} models.Anomaly
// @Failure 404 {object} ErrorResponse "Anomaly not found"
// @Router /anomalies/{id} [get]
func (h *AnomalyHandler) Get(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnomalyHandler) bindTransition(c *gin.Context) (TransitionRequest, string, bool) {
	var req TransitionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return req, "", false
		}
	}
	actor, err := resolveActor(c, req.Actor)
	if err != nil {
		respondError(c, err)
		return req, "", false
	}
	req.Note = validation.SanitizeString(req.Note)
	if err := validation.ValidateNote(req.Note); err != nil {
		respondError(c, err)
		return req, "", false
	}
	return req, actor, true
}

// Acknowledge godoc
// @Summary Acknowledge an anomaly
// @Description Moves a new anomaly to acknowledged. Repeating the call is a no-op.
// @Tags Anomalies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Anomaly ID"
// @Param request body TransitionRequest false "Actor"
// @Success 200 {object} models.Anomaly
// @Failure 400 {object} ErrorResponse "Missing actor"
// @Failure 404 {object} ErrorResponse "Anomaly not found"
// @Failure 409 {object} ErrorResponse "Invalid transition"
// @Router /anomalies/{id}/acknowledge [post]
func (h *AnomalyHandler) Acknowledge(c *gin.Context) {
	_, actor, ok := h.bindTransition(c)
	if !ok {
		return
	}
	a, err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Resolve godoc
// @Summary Resolve an anomaly
// @Description Moves an acknowledged anomaly to resolved. Repeating the call is a no-op.
// @Tags Anomalies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Anomaly ID"
// @Param request body TransitionRequest false "Actor"
// @Success 200 {object} models.Anomaly
// @Failure 404 {object} ErrorResponse "Anomaly not found"
// @Failure 409 {object} ErrorResponse "Invalid transition"
// @Router /anomalies/{id}/resolve [post]
func (h *AnomalyHandler) Resolve(c *gin.Context) {
	_, actor, ok := h.bindTransition(c)
	if !ok {
		return
	}
	a, err := h.service.Resolve(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// FalsePositive godoc
// @Summary Mark an anomaly as a false positive
// @Description Closes the anomaly and records feedback against its rule
// @Tags Anomalies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Anomaly ID"
// @Param request body TransitionRequest false "Actor and note"
// @Success 200 {object} models.Anomaly
// @Failure 404 {object} ErrorResponse "Anomaly not found"
// @Failure 409 {object} ErrorResponse "Invalid transition"
// @Router /anomalies/{id}/false-positive [post]
func (h *AnomalyHandler) FalsePositive(c *gin.Context) {
	req, actor, ok := h.bindTransition(c)
	if !ok {
		return
	}
	a, err := h.service.MarkFalsePositive(c.Request.Context(), c.Param("id"), actor, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// SubmitFeedback godoc
// @Summary Submit feedback on an anomaly
// @Description confirmed and adjusted feedback leave the state unchanged, false_positive closes the anomaly
// @Tags Anomalies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Anomaly ID"
// @Param request body FeedbackRequest true "Feedback"
// @Success 200 {object} models.Anomaly
// @Failure 400 {object} ErrorResponse "Invalid feedback"
// @Failure 404 {object} ErrorResponse "Anomaly not found"
// @Failure 409 {object} ErrorResponse "Invalid transition"
// @Router /anomalies/{id}/feedback [post]
func (h *AnomalyHandler) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	kind, err := models.ParseFeedbackType(req.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	actor, err := resolveActor(c, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	note := validation.SanitizeString(req.Note)
	if err := validation.ValidateNote(note); err != nil {
		respondError(c, err)
		return
	}

	a, err := h.service.SubmitFeedback(c.Request.Context(), c.Param("id"), kind, actor, note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// ListFeedback godoc
// @Summary List feedback for an anomaly
// @Tags Anomalies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Anomaly ID"
// @Success 200 {object} FeedbackListResponse
// @Failure 404 {object} ErrorResponse "Anomaly not found"
// @Router /anomalies/{id}/feedback [get]
func (h *AnomalyHandler) ListFeedback(c *gin.Context) {
	feedback, err := h.service.Feedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if feedback == nil {
		feedback = []*models.Feedback{}
	}
	c.JSON(http.StatusOK, FeedbackListResponse{Feedback: feedback})
}
