package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
)

// StateRepository stores engine bookkeeping such as the ingest watermark.
type StateRepository struct {
	db *sql.DB
}

func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

var _ storage.StateStore = (*StateRepository)(nil)

func (r *StateRepository) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	var value time.Time
	err := r.db.QueryRowContext(ctx, `SELECT value FROM engine_state WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return value.UTC(), true, nil
}

func (r *StateRepository) SetTime(ctx context.Context, key string, value time.Time) error {
	query := `
		INSERT INTO engine_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}
