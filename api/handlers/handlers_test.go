package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/api/middleware"
	"github.com/CIRISAI/CIRISBridge/internal/alerting"
	"github.com/CIRISAI/CIRISBridge/internal/auth"
	"github.com/CIRISAI/CIRISBridge/internal/baseline"
	"github.com/CIRISAI/CIRISBridge/internal/ingester"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/orchestrator"
	"github.com/CIRISAI/CIRISBridge/internal/storage/memory"
	"github.com/CIRISAI/CIRISBridge/pkg/database/queries"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router  *gin.Engine
	manager *alerting.Manager
	clock   *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(t0.Add(time.Hour))

	stores := memory.New()
	m := metrics.New()
	outbox := alerting.NewOutbox(alerting.OutboxConfig{}, nil, stores.Alerts,
		alerting.WithOutboxClock(mock), alerting.WithOutboxMetrics(m))
	manager := alerting.NewManager(alerting.Config{}, stores, outbox,
		alerting.WithClock(mock), alerting.WithMetrics(m))

	h := NewAnomalyHandler(manager, Limits{Default: 50, Max: 100}, mock)
	alerts := NewAlertHandler(manager, Limits{Default: 50, Max: 100}, mock)

	r := gin.New()
	r.GET("/anomalies", h.List)
	r.GET("/anomalies/:id", h.Get)
	r.POST("/anomalies/:id/acknowledge", h.Acknowledge)
	r.POST("/anomalies/:id/resolve", h.Resolve)
	r.POST("/anomalies/:id/false-positive", h.FalsePositive)
	r.POST("/anomalies/:id/feedback", h.SubmitFeedback)
	r.GET("/anomalies/:id/feedback", h.ListFeedback)
	r.GET("/alerts", alerts.List)

	return &fixture{router: r, manager: manager, clock: mock}
}

func (f *fixture) anomaly(t *testing.T, rule models.RuleID, service string, at time.Time) *models.Anomaly {
	t.Helper()
	res, err := f.manager.Submit(context.Background(), []*models.Candidate{{
		RuleID:     rule,
		Service:    service,
		Severity:   rule.Severity(),
		Score:      1.5,
		DetectedAt: at,
	}})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	return res.Created[0]
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAnomalies_ListFilters(t *testing.T) {
	f := newFixture(t)
	f.anomaly(t, models.RuleVolumeAnomaly, "api", t0)
	f.anomaly(t, models.RuleAuthFailureBurst, "auth", t0.Add(10*time.Minute))
	f.anomaly(t, models.RuleLatencyDegradation, "api", t0.Add(-48*time.Hour))

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 3},
		{"by service", "?service=api", 2},
		{"by severity", "?severity=critical", 1},
		{"by rule", "?rule=volume_anomaly", 1},
		{"by status", "?status=new", 3},
		{"range", "?range=24h", 2},
		{"range in days", "?range=7d", 3},
		{"explicit window", "?from=" + t0.Add(5*time.Minute).Format(time.RFC3339) + "&to=" + t0.Add(time.Hour).Format(time.RFC3339), 1},
		{"limit", "?limit=1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.router, http.MethodGet, "/anomalies"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decode[ListAnomaliesResponse](t, rec).Count)
		})
	}
}

func TestAnomalies_ListRejectsBadFilters(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"?status=open", "?severity=loud", "?rule=nope", "?limit=-1", "?range=soon", "?from=yesterday", "?service=a%20b"} {
		rec := do(f.router, http.MethodGet, "/anomalies"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "InvalidInput", decode[ErrorResponse](t, rec).Kind, q)
	}
}

func TestAnomalies_GetNotFound(t *testing.T) {
	f := newFixture(t)
	rec := do(f.router, http.MethodGet, "/anomalies/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decode[ErrorResponse](t, rec).Kind)
}

func TestAnomalies_Lifecycle(t *testing.T) {
	f := newFixture(t)
	a := f.anomaly(t, models.RuleErrorRateSpike, "api", t0)
	base := "/anomalies/" + a.ID

	// Resolving straight from new is not an edge of the lifecycle.
	rec := do(f.router, http.MethodPost, base+"/resolve", `{"actor":"alice"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", decode[ErrorResponse](t, rec).Kind)

	rec = do(f.router, http.MethodPost, base+"/acknowledge", "", map[string]string{middleware.ActorHeader: "bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[models.Anomaly](t, rec)
	assert.Equal(t, models.StatusAcknowledged, got.Status)
	assert.Equal(t, "bob", got.AcknowledgedBy)

	// Idempotent.
	rec = do(f.router, http.MethodPost, base+"/acknowledge", `{"actor":"carol"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", decode[models.Anomaly](t, rec).AcknowledgedBy)

	rec = do(f.router, http.MethodPost, base+"/resolve", `{"actor":"alice"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusResolved, decode[models.Anomaly](t, rec).Status)

	rec = do(f.router, http.MethodPost, base+"/false-positive", `{"actor":"alice"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnomalies_RequiresActor(t *testing.T) {
	f := newFixture(t)
	a := f.anomaly(t, models.RuleErrorRateSpike, "api", t0)

	rec := do(f.router, http.MethodPost, "/anomalies/"+a.ID+"/acknowledge", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(f.router, http.MethodPost, "/anomalies/"+a.ID+"/acknowledge", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnomalies_AuthenticatedUserIsActor(t *testing.T) {
	f := newFixture(t)
	a := f.anomaly(t, models.RuleErrorRateSpike, "api", t0)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UsernameKey, "operator")
		c.Next()
	})
	r.POST("/anomalies/:id/acknowledge", NewAnomalyHandler(f.manager, Limits{}, f.clock).Acknowledge)

	rec := do(r, http.MethodPost, "/anomalies/"+a.ID+"/acknowledge", `{"actor":"someone-else"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", decode[models.Anomaly](t, rec).AcknowledgedBy)
}

func TestAnomalies_FalsePositiveAndFeedback(t *testing.T) {
	f := newFixture(t)
	a := f.anomaly(t, models.RuleVolumeAnomaly, "api", t0)
	base := "/anomalies/" + a.ID

	rec := do(f.router, http.MethodPost, base+"/feedback", `{"type":"confirmed","actor":"alice","note":"real traffic drop"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusNew, decode[models.Anomaly](t, rec).Status)

	rec = do(f.router, http.MethodPost, base+"/false-positive", `{"actor":"alice","note":"deploy"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusFalsePositive, decode[models.Anomaly](t, rec).Status)

	// A repeat does not record the feedback twice.
	rec = do(f.router, http.MethodPost, base+"/false-positive", `{"actor":"alice"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(f.router, http.MethodGet, base+"/feedback", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[FeedbackListResponse](t, rec).Feedback
	require.Len(t, list, 2)
	assert.Equal(t, models.FeedbackConfirmed, list[0].Type)
	assert.Equal(t, models.FeedbackFalsePositive, list[1].Type)
	assert.Equal(t, models.RuleVolumeAnomaly, list[1].RuleID)

	rec = do(f.router, http.MethodPost, base+"/feedback", `{"type":"shrug","actor":"alice"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(f.router, http.MethodGet, "/anomalies/missing/feedback", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlerts_List(t *testing.T) {
	f := newFixture(t)
	a := f.anomaly(t, models.RuleErrorRateSpike, "api", t0)

	rec := do(f.router, http.MethodGet, "/alerts?anomaly_id="+a.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[ListAlertsResponse](t, rec).Alerts)

	rec = do(f.router, http.MethodGet, "/alerts?status=lost", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBaselines(t *testing.T) {
	store := baseline.NewStore(memory.NewBaselineStore(), time.UTC)
	require.NoError(t, store.Publish(baseline.NewSnapshot(3, t0, 7*24*time.Hour, time.UTC, []models.Baseline{
		{Key: models.NewBaselineKey("api", models.MetricRequestCount, t0), Mean: 100, StdDev: 10, SampleCount: 200},
		{Key: models.NewBaselineKey("api", models.MetricErrorRate, t0), Mean: 0.01, StdDev: 0.005, SampleCount: 200},
		{Key: models.NewBaselineKey("auth", models.MetricRequestCount, t0), Mean: 40, StdDev: 4, SampleCount: 200},
	}, nil, nil)))

	triggered := 0
	h := NewBaselineHandler(store, func() error {
		triggered++
		return nil
	})
	r := gin.New()
	r.GET("/baselines", h.List)
	r.POST("/baselines/recompute", h.Recompute)

	rec := do(r, http.MethodGet, "/baselines?service=api", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BaselinesResponse](t, rec)
	assert.Equal(t, int64(3), resp.Version)
	assert.Equal(t, 2, resp.Count)

	rec = do(r, http.MethodGet, "/baselines?metric=request_count", "", nil)
	assert.Equal(t, 2, decode[BaselinesResponse](t, rec).Count)

	rec = do(r, http.MethodGet, "/baselines?metric=cpu", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/baselines/recompute", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, triggered)
}

type fakeRegistry map[models.RuleID]bool

func (f fakeRegistry) Enabled(id models.RuleID) bool { return f[id] }

type fakeStats []models.RuleStat

func (f fakeStats) RuleStats() []models.RuleStat { return f }

func TestRules_List(t *testing.T) {
	h := NewRuleHandler(
		fakeRegistry{models.RuleVolumeAnomaly: true, models.RuleErrorRateSpike: true},
		fakeStats{{RuleID: models.RuleVolumeAnomaly, Raised: 10, FalsePositives: 4, Ratio: 0.4, Flagged: true, Weight: 0.6}},
	)
	r := gin.New()
	r.GET("/rules", h.List)

	rec := do(r, http.MethodGet, "/rules", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decode[RulesResponse](t, rec).Rules
	require.Len(t, rules, len(models.AllRules()))

	byID := make(map[models.RuleID]RuleInfo)
	for _, rule := range rules {
		byID[rule.ID] = rule
	}
	vol := byID[models.RuleVolumeAnomaly]
	assert.True(t, vol.Enabled)
	assert.True(t, vol.Flagged)
	assert.InDelta(t, 0.4, vol.FalsePositiveRatio, 1e-9)
	assert.InDelta(t, 0.6, vol.Weight, 1e-9)

	assert.False(t, byID[models.RuleMultivariateOutlier].Enabled)
	assert.True(t, byID[models.RuleConsecutiveFailures].Enabled)
	assert.Equal(t, 1.0, byID[models.RuleErrorRateSpike].Weight)
	assert.Equal(t, models.SeverityCritical, byID[models.RuleErrorRateSpike].Severity)
}

type fakeReady struct{ err error }

func (f fakeReady) Ready(context.Context) error { return f.err }

type fakeStatus orchestrator.Status

func (f fakeStatus) Status() orchestrator.Status { return orchestrator.Status(f) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		ready  error
		status orchestrator.Status
		code   int
		want   string
	}{
		{"healthy", nil, orchestrator.Status{SourceCircuit: "closed"}, http.StatusOK, "healthy"},
		{"degraded", nil, orchestrator.Status{SourceCircuit: "open", Ingest: ingester.Status{LastError: "metric source unavailable"}}, http.StatusOK, "degraded"},
		{"unhealthy", errors.New("connection refused"), orchestrator.Status{}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(fakeReady{tt.ready}, fakeStatus(tt.status))
			r := gin.New()
			r.GET("/health", h.Health)
			r.GET("/health/ready", h.Ready)
			r.GET("/health/live", h.Live)

			rec := do(r, http.MethodGet, "/health", "", nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.want, decode[HealthResponse](t, rec).Status)

			rec = do(r, http.MethodGet, "/health/live", "", nil)
			assert.Equal(t, http.StatusOK, rec.Code)

			rec = do(r, http.MethodGet, "/health/ready", "", nil)
			if tt.ready != nil {
				assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			} else {
				assert.Equal(t, http.StatusOK, rec.Code)
			}
		})
	}
}

type fakeUsers map[string]*queries.User

func (f fakeUsers) GetByUsername(_ context.Context, username string) (*queries.User, error) {
	if u, ok := f[username]; ok {
		return u, nil
	}
	return nil, queries.ErrUserNotFound
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("s3cret-pass")
	require.NoError(t, err)
	svc := auth.NewService("test-secret", time.Hour)
	h := NewAuthHandler(fakeUsers{"alice": {ID: 7, Username: "alice", PasswordHash: hash}}, svc)

	r := gin.New()
	r.POST("/auth/login", h.Login)

	rec := do(r, http.MethodPost, "/auth/login", `{"username":"alice","password":"s3cret-pass"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LoginResponse](t, rec)
	assert.Equal(t, 3600, resp.ExpiresIn)
	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), middleware.AuthCookie+"=")

	for _, body := range []string{
		`{"username":"alice","password":"wrong"}`,
		`{"username":"mallory","password":"s3cret-pass"}`,
	} {
		rec = do(r, http.MethodPost, "/auth/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, body)
	}

	rec = do(r, http.MethodPost, "/auth/login", `{"username":"alice"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
