package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/database"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type BaselineRepository struct {
	db *sql.DB
}

func NewBaselineRepository(db *sql.DB) *BaselineRepository {
	return &BaselineRepository{db: db}
}

var _ storage.BaselineStore = (*BaselineRepository)(nil)

// Replace writes a complete snapshot. Readers of the previous rows see either
// the old set or the new one, never a mix.
func (r *BaselineRepository) Replace(ctx context.Context, set *storage.BaselineSet) error {
	return database.InTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		for _, table := range []string{"baselines", "baseline_signatures", "baseline_regions"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO baselines (service, metric, hour_of_day, day_of_week, mean, stddev, sample_count, computed_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range set.Baselines {
			_, err := stmt.ExecContext(ctx,
				b.Key.Service, b.Key.Metric, b.Key.HourOfDay, int(b.Key.DayOfWeek),
				b.Mean, b.StdDev, b.SampleCount, b.ComputedAt, set.Version,
			)
			if err != nil {
				return err
			}
		}

		if err := insertMembers(ctx, tx, `INSERT INTO baseline_signatures (service, signature, version) VALUES ($1, $2, $3)`, set.Signatures, set.Version); err != nil {
			return err
		}
		if err := insertMembers(ctx, tx, `INSERT INTO baseline_regions (service, region, version) VALUES ($1, $2, $3)`, set.Regions, set.Version); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO baseline_snapshots (version, computed_at, window_secs, key_count)
			VALUES ($1, $2, $3, $4)`,
			set.Version, set.ComputedAt, int64(set.Window/time.Second), len(set.Baselines),
		)
		return err
	})
}

func insertMembers(ctx context.Context, tx *sql.Tx, query string, members map[string][]string, version int64) error {
	if len(members) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for service, values := range members {
		for _, v := range values {
			if _, err := stmt.ExecContext(ctx, service, v, version); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *BaselineRepository) Latest(ctx context.Context) (*storage.BaselineSet, error) {
	var (
		set        storage.BaselineSet
		windowSecs int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT version, computed_at, window_secs
		FROM baseline_snapshots
		ORDER BY version DESC
		LIMIT 1`).Scan(&set.Version, &set.ComputedAt, &windowSecs)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	set.Window = time.Duration(windowSecs) * time.Second

	rows, err := r.db.QueryContext(ctx, `
		SELECT service, metric, hour_of_day, day_of_week, mean, stddev, sample_count, computed_at
		FROM baselines
		WHERE version = $1`, set.Version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b   models.Baseline
			dow int
		)
		err := rows.Scan(&b.Key.Service, &b.Key.Metric, &b.Key.HourOfDay, &dow,
			&b.Mean, &b.StdDev, &b.SampleCount, &b.ComputedAt)
		if err != nil {
			return nil, err
		}
		b.Key.DayOfWeek = time.Weekday(dow)
		set.Baselines = append(set.Baselines, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if set.Signatures, err = r.members(ctx, `SELECT service, signature FROM baseline_signatures WHERE version = $1`, set.Version); err != nil {
		return nil, err
	}
	if set.Regions, err = r.members(ctx, `SELECT service, region FROM baseline_regions WHERE version = $1`, set.Version); err != nil {
		return nil, err
	}

	return &set, nil
}

func (r *BaselineRepository) members(ctx context.Context, query string, version int64) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, query, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var service, value string
		if err := rows.Scan(&service, &value); err != nil {
			return nil, err
		}
		out[service] = append(out[service], value)
	}
	return out, rows.Err()
}
