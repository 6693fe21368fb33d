package postgres

import (
	"context"
	"database/sql"

	"dispatchsim/internal/domain"
)

// NYC bounding box and quality filters, ported from the reference cleaning
// pipeline: trips shorter than half a mile or cheaper than $3 are noise,
// and pickups outside this box aren't NYC trips at all.
const (
	nycMinLon = -74.25
	nycMaxLon = -73.75
	nycMinLat = 40.40
	nycMaxLat = 40.80

	minTripDistanceMi = 0.5
	minTotalAmount    = 3.0
)

// NycCleanRepository is a PostgreSQL implementation of repository.NycCleanRepository.
type NycCleanRepository struct {
	db *sql.DB
}

// NewNycCleanRepository creates a new PostgreSQL seed/clean repository.
func NewNycCleanRepository(db *sql.DB) *NycCleanRepository {
	return &NycCleanRepository{db: db}
}

// LoadSynthetic generates n synthetic NYC trip rows into staging, spread
// uniformly across the bounding box and the last 24 simulated hours.
func (r *NycCleanRepository) LoadSynthetic(ctx context.Context, n int) error {
	query := `
		INSERT INTO staging_nyc_raw (ride_id, pickup_datetime, dropoff_datetime, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, trip_distance, total_amount)
		SELECT
			gen_random_uuid()::text,
			ts,
			ts + (interval '5 minutes' + random() * interval '45 minutes'),
			$2 + random() * ($3 - $2),
			$4 + random() * ($5 - $4),
			$2 + random() * ($3 - $2),
			$4 + random() * ($5 - $4),
			0.3 + random() * 12.0,
			3.5 + random() * 45.0
		FROM generate_series(1, $1), LATERAL (SELECT now() - (random() * interval '24 hours') AS ts) s
	`
	_, err := r.db.ExecContext(ctx, query, n, nycMinLat, nycMaxLat, nycMinLon, nycMaxLon)
	return err
}

// Clean copies qualifying staging rows into nyc_clean.
func (r *NycCleanRepository) Clean(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO nyc_clean (ride_id, pickup_datetime, dropoff_datetime, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, trip_distance, total_amount)
		SELECT ride_id, pickup_datetime, dropoff_datetime, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, trip_distance, total_amount
		FROM staging_nyc_raw
		WHERE trip_distance > $1
		  AND total_amount > $2
		  AND pickup_lon BETWEEN $3 AND $4
		  AND pickup_lat BETWEEN $5 AND $6
		ON CONFLICT (ride_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, minTripDistanceMi, minTotalAmount, nycMinLon, nycMaxLon, nycMinLat, nycMaxLat)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountClean returns the number of rows available to replay.
func (r *NycCleanRepository) CountClean(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM nyc_clean`).Scan(&n)
	return n, err
}

// ListClean returns up to limit clean rows ordered by pickup_datetime.
func (r *NycCleanRepository) ListClean(ctx context.Context, limit, offset int) ([]domain.HistoricalRide, error) {
	query := `
		SELECT ride_id, pickup_datetime, dropoff_datetime, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, trip_distance, total_amount
		FROM nyc_clean
		ORDER BY pickup_datetime
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoricalRide
	for rows.Next() {
		var h domain.HistoricalRide
		if err := rows.Scan(&h.RideID, &h.PickupDatetime, &h.DropoffDatetime, &h.PickupLat, &h.PickupLon, &h.DropoffLat, &h.DropoffLon, &h.TripDistanceMi, &h.TotalAmount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TruncateAll empties every simulation table, for a fresh replay run.
func (r *NycCleanRepository) TruncateAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `TRUNCATE staging_nyc_raw, nyc_clean, drivers, rides, trips`)
	return err
}
