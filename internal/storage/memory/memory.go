// Package memory provides in-memory implementations of the storage
// interfaces for tests and for running the engine without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// New returns a full set of in-memory stores.
func New() *storage.Stores {
	return &storage.Stores{
		Anomalies: NewAnomalyStore(),
		Alerts:    NewAlertStore(),
		Feedback:  NewFeedbackStore(),
		Baselines: NewBaselineStore(),
		State:     NewStateStore(),
	}
}

// AnomalyStore guards its map with an RWMutex and each record with its own
// mutex, so Update on one anomaly never waits on another. Locks are taken
// map first, then record; Update holds only the record lock.
type AnomalyStore struct {
	mu      sync.RWMutex
	records map[string]*anomalyRecord
}

type anomalyRecord struct {
	mu      sync.Mutex
	anomaly *models.Anomaly
	deleted bool
}

func (r *anomalyRecord) snapshot() *models.Anomaly {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anomaly.Clone()
}

func NewAnomalyStore() *AnomalyStore {
	return &AnomalyStore{records: make(map[string]*anomalyRecord)}
}

func (s *AnomalyStore) record(id string) (*anomalyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// all snapshots every record.
func (s *AnomalyStore) all() []*models.Anomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Anomaly, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.snapshot())
	}
	return out
}

func (s *AnomalyStore) Insert(_ context.Context, a *models.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[a.ID]; exists {
		return models.ErrInvalidInput
	}
	s.records[a.ID] = &anomalyRecord{anomaly: a.Clone()}
	return nil
}

func (s *AnomalyStore) Get(_ context.Context, id string) (*models.Anomaly, error) {
	r, ok := s.record(id)
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.snapshot(), nil
}

func (s *AnomalyStore) FindOpen(_ context.Context, service string, rule models.RuleID, since time.Time) (*models.Anomaly, error) {
	var best *models.Anomaly
	for _, a := range s.all() {
		if a.Service != service || a.RuleID != rule || !a.Status.IsOpen() {
			continue
		}
		if a.LastSeenAt.Before(since) {
			continue
		}
		if best == nil || a.LastSeenAt.After(best.LastSeenAt) {
			best = a
		}
	}
	return best, nil
}

func (s *AnomalyStore) Update(_ context.Context, id string, fn storage.UpdateFunc) (*models.Anomaly, error) {
	r, ok := s.record(id)
	if !ok {
		return nil, models.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return nil, models.ErrNotFound
	}

	working := r.anomaly.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	r.anomaly = working
	return working.Clone(), nil
}

func (s *AnomalyStore) List(_ context.Context, filter models.AnomalyFilter) ([]*models.Anomaly, error) {
	var out []*models.Anomaly
	for _, a := range s.all() {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *AnomalyStore) CountRaised(_ context.Context, since time.Time) (map[models.RuleID]int, error) {
	counts := make(map[models.RuleID]int)
	for _, a := range s.all() {
		if !a.DetectedAt.Before(since) {
			counts[a.RuleID]++
		}
	}
	return counts, nil
}

func (s *AnomalyStore) PurgeTerminal(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.records {
		r.mu.Lock()
		if r.anomaly.Status.IsTerminal() && r.anomaly.UpdatedAt.Before(before) {
			r.deleted = true
			ids = append(ids, id)
			delete(s.records, id)
		}
		r.mu.Unlock()
	}
	sort.Strings(ids)
	return ids, nil
}

type AlertStore struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[string]*models.Alert)}
}

func cloneAlert(a *models.Alert) *models.Alert {
	cp := *a
	cp.AnomalyIDs = append([]string(nil), a.AnomalyIDs...)
	return &cp
}

func (s *AlertStore) Insert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; exists {
		return models.ErrInvalidInput
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *AlertStore) Update(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; !exists {
		return models.ErrNotFound
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *AlertStore) List(_ context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Alert
	for _, a := range s.alerts {
		if filter.Matches(a) {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *AlertStore) AcknowledgeForAnomaly(_ context.Context, anomalyID, actor string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.alerts {
		if a.AcknowledgedAt != nil || !containsID(a.AnomalyIDs, anomalyID) {
			continue
		}
		ts := at
		a.AcknowledgedAt = &ts
		a.AcknowledgedBy = actor
		n++
	}
	return n, nil
}

func (s *AlertStore) DeleteForAnomalies(_ context.Context, anomalyIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, a := range s.alerts {
		for _, anomalyID := range anomalyIDs {
			if containsID(a.AnomalyIDs, anomalyID) {
				delete(s.alerts, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type FeedbackStore struct {
	mu     sync.Mutex
	nextID int64
	items  []*models.Feedback
}

func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{}
}

func (s *FeedbackStore) Append(_ context.Context, f *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	f.ID = s.nextID
	cp := *f
	s.items = append(s.items, &cp)
	return nil
}

func (s *FeedbackStore) ListForAnomaly(_ context.Context, anomalyID string) ([]*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Feedback
	for _, f := range s.items {
		if f.AnomalyID == anomalyID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *FeedbackStore) CountByRule(_ context.Context, kind models.FeedbackType, since time.Time) (map[models.RuleID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.RuleID]int)
	for _, f := range s.items {
		if f.Type == kind && !f.CreatedAt.Before(since) {
			counts[f.RuleID]++
		}
	}
	return counts, nil
}

type BaselineStore struct {
	mu  sync.RWMutex
	set *storage.BaselineSet
}

func NewBaselineStore() *BaselineStore {
	return &BaselineStore{}
}

func (s *BaselineStore) Replace(_ context.Context, set *storage.BaselineSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
	return nil
}

func (s *BaselineStore) Latest(_ context.Context) (*storage.BaselineSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.set == nil {
		return nil, models.ErrNotFound
	}
	return s.set, nil
}

type StateStore struct {
	mu     sync.Mutex
	values map[string]time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{values: make(map[string]time.Time)}
}

func (s *StateStore) GetTime(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *StateStore) SetTime(_ context.Context, key string, value time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
