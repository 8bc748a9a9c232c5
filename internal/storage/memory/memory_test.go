package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

func newAnomaly(service string, rule models.RuleID, at time.Time) *models.Anomaly {
	return models.NewAnomaly(&models.Candidate{
		RuleID:     rule,
		Service:    service,
		Severity:   rule.Severity(),
		Score:      1.2,
		DetectedAt: at,
	})
}

func TestAnomalyStore_FindOpen(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	older := newAnomaly("api", models.RuleErrorRateSpike, base)
	newer := newAnomaly("api", models.RuleErrorRateSpike, base.Add(2*time.Minute))
	other := newAnomaly("web", models.RuleErrorRateSpike, base.Add(3*time.Minute))
	require.NoError(t, s.Insert(ctx, older))
	require.NoError(t, s.Insert(ctx, newer))
	require.NoError(t, s.Insert(ctx, other))

	found, err := s.FindOpen(ctx, "api", models.RuleErrorRateSpike, base.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)

	found, err = s.FindOpen(ctx, "api", models.RuleErrorRateSpike, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = s.Update(ctx, newer.ID, func(a *models.Anomaly) error {
		_, err := a.Apply(models.StatusFalsePositive, "ops", base.Add(4*time.Minute))
		return err
	})
	require.NoError(t, err)

	found, err = s.FindOpen(ctx, "api", models.RuleErrorRateSpike, base.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, older.ID, found.ID)
}

func TestAnomalyStore_UpdateErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore()
	a := newAnomaly("api", models.RuleVolumeAnomaly, time.Now())
	require.NoError(t, s.Insert(ctx, a))

	boom := errors.New("boom")
	_, err := s.Update(ctx, a.ID, func(a *models.Anomaly) error {
		a.Score = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.2, got.Score)

	_, err = s.Update(ctx, "missing", func(*models.Anomaly) error { return nil })
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAnomalyStore_UpdateLocksPerRecord(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	slow := newAnomaly("api", models.RuleVolumeAnomaly, base)
	fast := newAnomaly("web", models.RuleVolumeAnomaly, base)
	require.NoError(t, s.Insert(ctx, slow))
	require.NoError(t, s.Insert(ctx, fast))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, slow.ID, func(a *models.Anomaly) error {
			close(entered)
			<-release
			a.Score = 5
			return nil
		})
		done <- err
	}()
	<-entered

	updated := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, fast.ID, func(a *models.Anomaly) error {
			a.Score = 7
			return nil
		})
		updated <- err
	}()
	select {
	case err := <-updated:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("update of another record waited on the held one")
	}
	got, err := s.Get(ctx, fast.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.Score)

	close(release)
	require.NoError(t, <-done)
	got, err = s.Get(ctx, slow.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Score)
}

func TestAnomalyStore_ConcurrentUpdatesSameRecord(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore()
	a := newAnomaly("api", models.RuleLatencyDegradation, time.Now())
	require.NoError(t, s.Insert(ctx, a))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, a.ID, func(a *models.Anomaly) error {
				a.OccurrenceCount++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.OccurrenceCount+50, got.OccurrenceCount)
}

func TestAnomalyStore_ListAndPurge(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Insert(ctx, newAnomaly("api", models.RuleLatencyDegradation, base.Add(time.Duration(i)*time.Hour))))
	}
	list, err := s.List(ctx, models.AnomalyFilter{Service: "api", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].DetectedAt.After(list[1].DetectedAt))

	_, err = s.Update(ctx, list[1].ID, func(a *models.Anomaly) error {
		_, err := a.Apply(models.StatusFalsePositive, "ops", base.Add(3*time.Hour))
		return err
	})
	require.NoError(t, err)

	ids, err := s.PurgeTerminal(ctx, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{list[1].ID}, ids)

	counts, err := s.CountRaised(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.RuleLatencyDegradation])
}

func TestAlertStore_AcknowledgeAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	now := time.Now()

	a1 := models.NewAlert("slack", models.SeverityCritical, []string{"a"}, now)
	a2 := models.NewAlert("slack", models.SeverityWarning, []string{"b", "a"}, now)
	a3 := models.NewAlert("slack", models.SeverityWarning, []string{"c"}, now)
	for _, a := range []*models.Alert{a1, a2, a3} {
		require.NoError(t, s.Insert(ctx, a))
	}

	n, err := s.AcknowledgeForAnomaly(ctx, "a", "ops", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AcknowledgeForAnomaly(ctx, "a", "ops", now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := s.List(ctx, models.AlertFilter{AnomalyID: "a"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ops", list[0].AcknowledgedBy)

	n, err = s.DeleteForAnomalies(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = s.List(ctx, models.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFeedbackStore_CountByRule(t *testing.T) {
	ctx := context.Background()
	s := NewFeedbackStore()
	now := time.Now()

	require.NoError(t, s.Append(ctx, &models.Feedback{AnomalyID: "a", RuleID: models.RuleVolumeAnomaly, Type: models.FeedbackFalsePositive, CreatedAt: now}))
	require.NoError(t, s.Append(ctx, &models.Feedback{AnomalyID: "b", RuleID: models.RuleVolumeAnomaly, Type: models.FeedbackConfirmed, CreatedAt: now}))
	require.NoError(t, s.Append(ctx, &models.Feedback{AnomalyID: "c", RuleID: models.RuleVolumeAnomaly, Type: models.FeedbackFalsePositive, CreatedAt: now.Add(-48 * time.Hour)}))

	counts, err := s.CountByRule(ctx, models.FeedbackFalsePositive, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.RuleVolumeAnomaly])

	items, err := s.ListForAnomaly(ctx, "b")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ID)
}

func TestStateStore(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore()

	_, ok, err := s.GetTime(ctx, "watermark")
	require.NoError(t, err)
	assert.False(t, ok)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetTime(ctx, "watermark", ts))
	got, ok, err := s.GetTime(ctx, "watermark")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ts, got)
}
