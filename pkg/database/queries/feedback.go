package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// FeedbackRepository only ever inserts; feedback rows are never updated.
type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

var _ storage.FeedbackStore = (*FeedbackRepository)(nil)

func (r *FeedbackRepository) Append(ctx context.Context, f *models.Feedback) error {
	query := `
		INSERT INTO feedback (anomaly_id, rule_id, type, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		f.AnomalyID, f.RuleID, f.Type, f.Actor, nullString(f.Note), f.CreatedAt,
	).Scan(&f.ID)
}

func (r *FeedbackRepository) ListForAnomaly(ctx context.Context, anomalyID string) ([]*models.Feedback, error) {
	query := `
		SELECT id, anomaly_id, rule_id, type, actor, note, created_at
		FROM feedback
		WHERE anomaly_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, anomalyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Feedback
	for rows.Next() {
		var (
			f    models.Feedback
			note sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.AnomalyID, &f.RuleID, &f.Type, &f.Actor, &note, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Note = note.String
		items = append(items, &f)
	}
	return items, rows.Err()
}

func (r *FeedbackRepository) CountByRule(ctx context.Context, kind models.FeedbackType, since time.Time) (map[models.RuleID]int, error) {
	query := `SELECT rule_id, COUNT(*) FROM feedback WHERE type = $1 AND created_at >= $2 GROUP BY rule_id`
	return countByRule(ctx, r.db, query, kind, since)
}
