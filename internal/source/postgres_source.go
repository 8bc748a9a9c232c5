package source

import (
	"context"
	"database/sql"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/database/queries"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// PostgresSource reads request logs from the log-aggregation database.
type PostgresSource struct {
	repo *queries.RequestLogRepository
}

func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	return &PostgresSource{repo: queries.NewRequestLogRepository(db, table)}
}

func (s *PostgresSource) Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	return s.repo.Fetch(ctx, from, to)
}

func (s *PostgresSource) HealthCheck(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *PostgresSource) Close() error {
	return nil
}
