package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// RequestLogRepository reads per-request samples written by the log pipeline.
type RequestLogRepository struct {
	db    *sql.DB
	table string
}

func NewRequestLogRepository(db *sql.DB, table string) *RequestLogRepository {
	if table == "" {
		table = "request_logs"
	}
	return &RequestLogRepository{db: db, table: pq.QuoteIdentifier(table)}
}

// Fetch returns events with from <= ts < to in timestamp order.
func (r *RequestLogRepository) Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	query := `
		SELECT ts, service, status_code, latency_ms, source_id,
			   COALESCE(endpoint, ''), COALESCE(error_code, ''), COALESCE(region, '')
		FROM ` + r.table + `
		WHERE ts >= $1 AND ts < $2
		ORDER BY ts`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.RawEvent
	for rows.Next() {
		var e models.RawEvent
		err := rows.Scan(&e.Timestamp, &e.Service, &e.StatusCode, &e.LatencyMs, &e.SourceID,
			&e.Endpoint, &e.ErrorCode, &e.Region)
		if err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *RequestLogRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *RequestLogRepository) InsertBatch(ctx context.Context, events []models.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+r.table+` (ts, service, status_code, latency_ms, source_id, endpoint, error_code, region)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx, e.Timestamp, e.Service, e.StatusCode, e.LatencyMs, e.SourceID,
			nullString(e.Endpoint), nullString(e.ErrorCode), nullString(e.Region))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
