package queries

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var anomalyColumnNames = []string{
	"id", "detected_at", "rule_id", "service", "severity", "score", "metadata", "status",
	"occurrence_count", "last_seen_at", "acknowledged_at", "acknowledged_by", "resolved_at", "resolved_by",
	"false_positive", "snapshot_version", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func anomalyRow(id string, status models.AnomalyStatus, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(anomalyColumnNames).AddRow(
		id, at, "error_rate_spike", "api", "critical", 1.4, []byte(`{"observed":0.2}`), string(status),
		1, at, nil, nil, nil, nil,
		false, int64(3), at,
	)
}

func TestAnomalyRepository_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnomalyRepository(db)

	mock.ExpectQuery(`FROM anomalies WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomalyRepository_UpdateLocksRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnomalyRepository(db)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM anomalies WHERE id = \$1 FOR UPDATE`).
		WithArgs("a1").
		WillReturnRows(anomalyRow("a1", models.StatusNew, at))
	mock.ExpectExec(`UPDATE anomalies SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.Update(context.Background(), "a1", func(a *models.Anomaly) error {
		_, err := a.Apply(models.StatusAcknowledged, "ops", at.Add(time.Minute))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, updated.Status)
	assert.Equal(t, "ops", updated.AcknowledgedBy)
	assert.Equal(t, 0.2, updated.Metadata["observed"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomalyRepository_UpdateRollsBackOnInvalidTransition(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnomalyRepository(db)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("a1").
		WillReturnRows(anomalyRow("a1", models.StatusNew, at))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "a1", func(a *models.Anomaly) error {
		_, err := a.Apply(models.StatusResolved, "ops", at)
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomalyRepository_ListBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnomalyRepository(db)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM anomalies WHERE service = \$1 AND status = \$2 ORDER BY detected_at DESC, id LIMIT \$3`).
		WithArgs("api", "new", 10).
		WillReturnRows(anomalyRow("a1", models.StatusNew, at).
			AddRow("a2", at, "volume_anomaly", "api", "warning", 1.1, nil, "new",
				2, at, at, "ops", nil, nil, false, int64(3), at))

	list, err := repo.List(context.Background(), models.AnomalyFilter{
		Service: "api",
		Status:  models.StatusNew,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.RuleVolumeAnomaly, list[1].RuleID)
	require.NotNil(t, list[1].AcknowledgedAt)
	assert.Equal(t, "ops", list[1].AcknowledgedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomalyRepository_FindOpenNone(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnomalyRepository(db)
	since := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`status IN \('new', 'acknowledged'\) AND last_seen_at >= \$3`).
		WithArgs("api", "error_rate_spike", since).
		WillReturnRows(sqlmock.NewRows(anomalyColumnNames))

	a, err := repo.FindOpen(context.Background(), "api", models.RuleErrorRateSpike, since)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_DeleteForAnomalies(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAlertRepository(db)

	n, err := repo.DeleteForAnomalies(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(`DELETE FROM alerts WHERE anomaly_ids && \$1::uuid\[\]`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err = repo.DeleteForAnomalies(context.Background(), []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_UpdateMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAlertRepository(db)

	mock.ExpectExec(`UPDATE alerts SET status = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Alert{ID: "x", Status: models.AlertSent})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFeedbackRepository_Append(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFeedbackRepository(db)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO feedback`).
		WithArgs("a1", "volume_anomaly", "false_positive", "ops", sqlmock.AnyArg(), at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	f := &models.Feedback{
		AnomalyID: "a1",
		RuleID:    models.RuleVolumeAnomaly,
		Type:      models.FeedbackFalsePositive,
		Actor:     "ops",
		CreatedAt: at,
	}
	require.NoError(t, repo.Append(context.Background(), f))
	assert.Equal(t, int64(7), f.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_CountByRule(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFeedbackRepository(db)
	since := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM feedback WHERE type = \$1 AND created_at >= \$2 GROUP BY rule_id`).
		WithArgs("false_positive", since).
		WillReturnRows(sqlmock.NewRows([]string{"rule_id", "count"}).
			AddRow("volume_anomaly", 4).
			AddRow("latency_degradation", 1))

	counts, err := repo.CountByRule(context.Background(), models.FeedbackFalsePositive, since)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.RuleVolumeAnomaly])
	assert.Equal(t, 1, counts[models.RuleLatencyDegradation])
}

func TestBaselineRepository_Replace(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBaselineRepository(db)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	set := &storage.BaselineSet{
		Version:    4,
		ComputedAt: at,
		Window:     7 * 24 * time.Hour,
		Baselines: []models.Baseline{{
			Key:         models.BaselineKey{Service: "api", Metric: models.MetricRequestCount, HourOfDay: 10, DayOfWeek: time.Monday},
			Mean:        100,
			StdDev:      10,
			SampleCount: 42,
			ComputedAt:  at,
		}},
		Signatures: map[string][]string{"api": {"abc"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM baselines`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM baseline_signatures`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM baseline_regions`).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(`INSERT INTO baselines`)
	prep.ExpectExec().
		WithArgs("api", "request_count", 10, 1, 100.0, 10.0, 42, at, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sig := mock.ExpectPrepare(`INSERT INTO baseline_signatures`)
	sig.ExpectExec().WithArgs("api", "abc", int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO baseline_snapshots`).
		WithArgs(int64(4), at, int64(7*24*3600), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Replace(context.Background(), set))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineRepository_ReplaceRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBaselineRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM baselines`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), &storage.BaselineSet{Version: 1})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineRepository_LatestEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBaselineRepository(db)

	mock.ExpectQuery(`FROM baseline_snapshots`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStateRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStateRepository(db)
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT value FROM engine_state WHERE key = \$1`).
		WithArgs("ingest_watermark").
		WillReturnError(sql.ErrNoRows)
	_, ok, err := repo.GetTime(context.Background(), "ingest_watermark")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("ingest_watermark", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetTime(context.Background(), "ingest_watermark", ts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestLogRepository_Fetch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestLogRepository(db, "")
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	to := from.Add(time.Minute)

	mock.ExpectQuery(`FROM "request_logs" WHERE ts >= \$1 AND ts < \$2 ORDER BY ts`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "service", "status_code", "latency_ms", "source_id", "endpoint", "error_code", "region"}).
			AddRow(from.Add(time.Second), "api", 503, 120.5, "10.0.0.1", "/login", "upstream", "eu-west"))

	events, err := repo.Fetch(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Equal(t, "eu-west", events[0].Region)
	assert.NoError(t, mock.ExpectationsWereMet())
}
