package queries

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

const alertColumns = `id, anomaly_ids, channel, severity, status, attempts, last_error,
	created_at, sent_at, acknowledged_at, acknowledged_by`

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

var _ storage.AlertStore = (*AlertRepository)(nil)

func (r *AlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, stringArray(a.AnomalyIDs), a.Channel, a.Severity, a.Status, a.Attempts,
		nullString(a.LastError), a.CreatedAt, a.SentAt, a.AcknowledgedAt, nullString(a.AcknowledgedBy),
	)
	return err
}

func (r *AlertRepository) Update(ctx context.Context, a *models.Alert) error {
	query := `
		UPDATE alerts
		SET status = $2, attempts = $3, last_error = $4, sent_at = $5
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, a.ID, a.Status, a.Attempts, nullString(a.LastError), a.SentAt)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.AnomalyID != "" {
		add("$%d = ANY(anomaly_ids)", filter.AnomalyID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var (
			a              models.Alert
			lastError      sql.NullString
			sentAt         sql.NullTime
			acknowledgedAt sql.NullTime
			acknowledgedBy sql.NullString
		)
		err := rows.Scan(
			&a.ID, pq.Array(&a.AnomalyIDs), &a.Channel, &a.Severity, &a.Status, &a.Attempts,
			&lastError, &a.CreatedAt, &sentAt, &acknowledgedAt, &acknowledgedBy,
		)
		if err != nil {
			return nil, err
		}
		a.LastError = lastError.String
		a.AcknowledgedBy = acknowledgedBy.String
		if sentAt.Valid {
			t := sentAt.Time
			a.SentAt = &t
		}
		if acknowledgedAt.Valid {
			t := acknowledgedAt.Time
			a.AcknowledgedAt = &t
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) AcknowledgeForAnomaly(ctx context.Context, anomalyID, actor string, at time.Time) (int, error) {
	query := `
		UPDATE alerts
		SET acknowledged_at = $2, acknowledged_by = $3
		WHERE $1 = ANY(anomaly_ids) AND acknowledged_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, anomalyID, at, actor)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (r *AlertRepository) DeleteForAnomalies(ctx context.Context, anomalyIDs []string) (int, error) {
	if len(anomalyIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE anomaly_ids && $1::uuid[]`, stringArray(anomalyIDs))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
