package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/database"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

const anomalyColumns = `id, detected_at, rule_id, service, severity, score, metadata, status,
	occurrence_count, last_seen_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by,
	false_positive, snapshot_version, updated_at`

type AnomalyRepository struct {
	db *sql.DB
}

func NewAnomalyRepository(db *sql.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

var _ storage.AnomalyStore = (*AnomalyRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AnomalyRepository) Insert(ctx context.Context, a *models.Anomaly) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO anomalies (` + anomalyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.DetectedAt, a.RuleID, a.Service, a.Severity, a.Score, metadata, a.Status,
		a.OccurrenceCount, a.LastSeenAt, a.AcknowledgedAt, nullString(a.AcknowledgedBy),
		a.ResolvedAt, nullString(a.ResolvedBy), a.FalsePositive, a.SnapshotVersion, a.UpdatedAt,
	)
	return err
}

func (r *AnomalyRepository) Get(ctx context.Context, id string) (*models.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE id = $1`

	a, err := scanAnomaly(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	return a, err
}

func (r *AnomalyRepository) FindOpen(ctx context.Context, service string, rule models.RuleID, since time.Time) (*models.Anomaly, error) {
	query := `
		SELECT ` + anomalyColumns + `
		FROM anomalies
		WHERE service = $1 AND rule_id = $2 AND status IN ('new', 'acknowledged') AND last_seen_at >= $3
		ORDER BY last_seen_at DESC
		LIMIT 1`

	a, err := scanAnomaly(r.db.QueryRowContext(ctx, query, service, rule, since))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (r *AnomalyRepository) Update(ctx context.Context, id string, fn storage.UpdateFunc) (*models.Anomaly, error) {
	var updated *models.Anomaly

	err := database.InTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE id = $1 FOR UPDATE`
		a, err := scanAnomaly(tx.QueryRowContext(ctx, query, id))
		if err == sql.ErrNoRows {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := fn(a); err != nil {
			return err
		}

		metadata, err := json.Marshal(a.Metadata)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE anomalies
			SET score = $2, metadata = $3, status = $4, occurrence_count = $5, last_seen_at = $6,
				acknowledged_at = $7, acknowledged_by = $8, resolved_at = $9, resolved_by = $10,
				false_positive = $11, updated_at = $12
			WHERE id = $1`,
			a.ID, a.Score, metadata, a.Status, a.OccurrenceCount, a.LastSeenAt,
			a.AcknowledgedAt, nullString(a.AcknowledgedBy), a.ResolvedAt, nullString(a.ResolvedBy),
			a.FalsePositive, a.UpdatedAt,
		)
		if err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *AnomalyRepository) List(ctx context.Context, filter models.AnomalyFilter) ([]*models.Anomaly, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.From.IsZero() {
		add("detected_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("detected_at <= $%d", filter.To)
	}
	if filter.Service != "" {
		add("service = $%d", filter.Service)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if filter.RuleID != "" {
		add("rule_id = $%d", filter.RuleID)
	}

	query := `SELECT ` + anomalyColumns + ` FROM anomalies`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY detected_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []*models.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (r *AnomalyRepository) CountRaised(ctx context.Context, since time.Time) (map[models.RuleID]int, error) {
	query := `SELECT rule_id, COUNT(*) FROM anomalies WHERE detected_at >= $1 GROUP BY rule_id`
	return countByRule(ctx, r.db, query, since)
}

func (r *AnomalyRepository) PurgeTerminal(ctx context.Context, before time.Time) ([]string, error) {
	query := `
		DELETE FROM anomalies
		WHERE status IN ('resolved', 'false_positive') AND updated_at < $1
		RETURNING id`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanAnomaly(row rowScanner) (*models.Anomaly, error) {
	var (
		a              models.Anomaly
		metadata       []byte
		acknowledgedAt sql.NullTime
		acknowledgedBy sql.NullString
		resolvedAt     sql.NullTime
		resolvedBy     sql.NullString
	)

	err := row.Scan(
		&a.ID, &a.DetectedAt, &a.RuleID, &a.Service, &a.Severity, &a.Score, &metadata, &a.Status,
		&a.OccurrenceCount, &a.LastSeenAt, &acknowledgedAt, &acknowledgedBy, &resolvedAt, &resolvedBy,
		&a.FalsePositive, &a.SnapshotVersion, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", a.ID, err)
		}
	}
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		a.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	a.AcknowledgedBy = acknowledgedBy.String
	a.ResolvedBy = resolvedBy.String

	return &a, nil
}

func countByRule(ctx context.Context, db *sql.DB, query string, args ...any) (map[models.RuleID]int, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.RuleID]int)
	for rows.Next() {
		var (
			rule  models.RuleID
			count int
		)
		if err := rows.Scan(&rule, &count); err != nil {
			return nil, err
		}
		counts[rule] = count
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// stringArray adapts a []string for uuid[]/text[] columns.
func stringArray(v []string) any {
	return pq.Array(v)
}
