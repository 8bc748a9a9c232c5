// Package storage declares the persistence contracts used by the engine.
// Postgres implementations live in pkg/database/queries, in-memory ones in
// internal/storage/memory.
package storage

import (
	"context"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// UpdateFunc mutates an anomaly under the store's per-record lock. Returning
// an error aborts the update and leaves the stored record unchanged.
type UpdateFunc func(a *models.Anomaly) error

type AnomalyStore interface {
	Insert(ctx context.Context, a *models.Anomaly) error
	Get(ctx context.Context, id string) (*models.Anomaly, error)
	// FindOpen returns the most recently seen open anomaly for the key whose
	// LastSeenAt is not before since, or nil when there is none.
	FindOpen(ctx context.Context, service string, rule models.RuleID, since time.Time) (*models.Anomaly, error)
	// Update serializes fn against other writers of the same record.
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.Anomaly, error)
	List(ctx context.Context, filter models.AnomalyFilter) ([]*models.Anomaly, error)
	// CountRaised counts anomalies per rule detected at or after since.
	CountRaised(ctx context.Context, since time.Time) (map[models.RuleID]int, error)
	// PurgeTerminal deletes resolved and false-positive anomalies last updated
	// before the cutoff and returns their ids.
	PurgeTerminal(ctx context.Context, before time.Time) ([]string, error)
}

type AlertStore interface {
	Insert(ctx context.Context, a *models.Alert) error
	Update(ctx context.Context, a *models.Alert) error
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	AcknowledgeForAnomaly(ctx context.Context, anomalyID, actor string, at time.Time) (int, error)
	DeleteForAnomalies(ctx context.Context, anomalyIDs []string) (int, error)
}

// FeedbackStore is append-only.
type FeedbackStore interface {
	Append(ctx context.Context, f *models.Feedback) error
	ListForAnomaly(ctx context.Context, anomalyID string) ([]*models.Feedback, error)
	CountByRule(ctx context.Context, kind models.FeedbackType, since time.Time) (map[models.RuleID]int, error)
}

// BaselineSet is the persisted form of a baseline snapshot.
type BaselineSet struct {
	Version    int64
	ComputedAt time.Time
	Window     time.Duration
	Baselines  []models.Baseline
	Signatures map[string][]string
	Regions    map[string][]string
}

type BaselineStore interface {
	// Replace swaps the stored set for set in one transaction.
	Replace(ctx context.Context, set *BaselineSet) error
	// Latest returns the stored set, or models.ErrNotFound.
	Latest(ctx context.Context) (*BaselineSet, error)
}

type StateStore interface {
	GetTime(ctx context.Context, key string) (time.Time, bool, error)
	SetTime(ctx context.Context, key string, value time.Time) error
}

// Stores bundles every store the engine needs.
type Stores struct {
	Anomalies AnomalyStore
	Alerts    AlertStore
	Feedback  FeedbackStore
	Baselines BaselineStore
	State     StateStore
}
