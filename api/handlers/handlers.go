package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/api/middleware"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
	"github.com/CIRISAI/CIRISBridge/pkg/validation"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Limits bounds the page size of list endpoints.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) parse(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return l.Default, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidInput)
	}
	if l.Max > 0 && n > l.Max {
		n = l.Max
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).WithError(err).WithFields(logrus.Fields{
			"component": "api",
			"route":     c.FullPath(),
		}).Error("Request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Kind: models.ErrorKind(err)})
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, fmt.Sprintf(format, args...)))
}

// resolveActor prefers the authenticated user, then the actor named in the
// request body, then the X-Actor header.
func resolveActor(c *gin.Context, bodyActor string) (string, error) {
	actor := middleware.GetUsername(c)
	if actor == "" {
		actor = bodyActor
	}
	if actor == "" {
		actor = c.GetHeader(middleware.ActorHeader)
	}
	actor = validation.SanitizeString(actor)
	if err := validation.ValidateActor(actor); err != nil {
		return "", err
	}
	return actor, nil
}

// parseTime accepts RFC 3339 or unix seconds.
func parseTime(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or unix seconds", models.ErrInvalidInput, name)
}

// parseRange reads a lookback such as 30m, 24h or 7d.
func parseRange(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: invalid range %q", models.ErrInvalidInput, raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid range %q", models.ErrInvalidInput, raw)
	}
	return d, nil
}

// timeWindow resolves from, to and range query parameters. An explicit from
// wins over range, which counts back from to (or now).
func timeWindow(c *gin.Context, now time.Time) (time.Time, time.Time, error) {
	from, err := parseTime("from", c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime("to", c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	lookback, err := parseRange(c.Query("range"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.IsZero() && lookback > 0 {
		end := to
		if end.IsZero() {
			end = now
		}
		from = end.Add(-lookback)
	}
	if err := validation.ValidateTimeRange(from, to, 0); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
