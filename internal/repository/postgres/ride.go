package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatchsim/internal/domain"
	"dispatchsim/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	db *sql.DB
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{db: db}
}

// UpsertRequested inserts ride in REQUESTED state, or resets an
// already-present row back to REQUESTED so a restarted replay run can
// safely re-drive a ride it had begun processing before.
func (r *RideRepository) UpsertRequested(ctx context.Context, tx *sql.Tx, ride *domain.Ride) error {
	q := querierOf(r.db, tx)
	query := `
		INSERT INTO rides (id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, region, pickup_datetime, real_trip_duration_seconds, status, retries, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			retries = 0,
			assigned_driver_id = NULL,
			matched_at = NULL,
			match_latency_ms = NULL,
			requested_at = EXCLUDED.requested_at
	`
	_, err := q.ExecContext(ctx, query,
		ride.ID, ride.PickupLat, ride.PickupLon, ride.DropoffLat, ride.DropoffLon,
		ride.Region, ride.PickupDatetime, ride.RealTripDurationSeconds, domain.RideStatusRequested, ride.RequestedAt,
	)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `
		SELECT id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, region, pickup_datetime, real_trip_duration_seconds,
		       status, assigned_driver_id, retries, requested_at, matched_at, match_latency_ms
		FROM rides WHERE id = $1
	`
	return scanRide(r.db.QueryRowContext(ctx, query, id))
}

func scanRide(row *sql.Row) (*domain.Ride, error) {
	var ride domain.Ride
	var assignedDriverID sql.NullString
	var matchedAt sql.NullTime
	var matchLatencyMS sql.NullInt64

	err := row.Scan(
		&ride.ID, &ride.PickupLat, &ride.PickupLon, &ride.DropoffLat, &ride.DropoffLon,
		&ride.Region, &ride.PickupDatetime, &ride.RealTripDurationSeconds, &ride.Status, &assignedDriverID, &ride.Retries,
		&ride.RequestedAt, &matchedAt, &matchLatencyMS,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if assignedDriverID.Valid {
		ride.AssignedDriverID = &assignedDriverID.String
	}
	if matchedAt.Valid {
		t := matchedAt.Time
		ride.MatchedAt = &t
	}
	if matchLatencyMS.Valid {
		v := matchLatencyMS.Int64
		ride.MatchLatencyMS = &v
	}
	return &ride, nil
}

// RecordMatch stamps the matcher's half of the handoff onto a still-
// REQUESTED ride, without moving its status. The WHERE status =
// 'REQUESTED' clause is what makes this safe to call from two matchers
// racing on the same ride: only one UPDATE can ever match.
func (r *RideRepository) RecordMatch(ctx context.Context, tx *sql.Tx, rideID, driverID string, matchedAt time.Time, latencyMS int64) (bool, error) {
	query := `
		UPDATE rides
		SET assigned_driver_id = $1, matched_at = $2, match_latency_ms = $3, retries = 0
		WHERE id = $4 AND status = $5
	`
	result, err := tx.ExecContext(ctx, query,
		driverID, matchedAt, latencyMS, rideID, domain.RideStatusRequested,
	)
	if err != nil {
		return false, err
	}
	return rowsAffectedOne(result)
}

// ConfirmAssigned conditionally transitions a ride REQUESTED -> ASSIGNED
// once the ride-worker has observed its own match.
func (r *RideRepository) ConfirmAssigned(ctx context.Context, tx *sql.Tx, rideID, driverID string) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1, retries = 0
		WHERE id = $2 AND assigned_driver_id = $3 AND status = $4
	`
	result, err := tx.ExecContext(ctx, query,
		domain.RideStatusAssigned, rideID, driverID, domain.RideStatusRequested,
	)
	if err != nil {
		return false, err
	}
	return rowsAffectedOne(result)
}

// IncrementRetriesIfUnmatched bumps retries only while the ride is still
// unmatched and REQUESTED.
func (r *RideRepository) IncrementRetriesIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	query := `
		UPDATE rides SET retries = retries + 1
		WHERE id = $1 AND assigned_driver_id IS NULL AND status = $2
	`
	result, err := tx.ExecContext(ctx, query, id, domain.RideStatusRequested)
	if err != nil {
		return false, err
	}
	return rowsAffectedOne(result)
}

// ExpireIfUnmatched conditionally transitions a ride REQUESTED -> EXPIRED.
func (r *RideRepository) ExpireIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	query := `
		UPDATE rides SET status = $1
		WHERE id = $2 AND assigned_driver_id IS NULL AND status = $3
	`
	result, err := tx.ExecContext(ctx, query, domain.RideStatusExpired, id, domain.RideStatusRequested)
	if err != nil {
		return false, err
	}
	return rowsAffectedOne(result)
}

// SetEnRoute transitions a ride ASSIGNED -> EN_ROUTE.
func (r *RideRepository) SetEnRoute(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `UPDATE rides SET status = $1 WHERE id = $2 AND status = $3`,
		domain.RideStatusEnRoute, id, domain.RideStatusAssigned)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// Complete transitions a ride to COMPLETED and resets retries.
func (r *RideRepository) Complete(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `UPDATE rides SET status = $1, retries = 0 WHERE id = $2`,
		domain.RideStatusCompleted, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func rowsAffectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListRecent returns the most recently requested rides, newest first.
func (r *RideRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, region, pickup_datetime, real_trip_duration_seconds,
		       status, assigned_driver_id, retries, requested_at, matched_at, match_latency_ms
		FROM rides ORDER BY requested_at DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		var ride domain.Ride
		var assignedDriverID sql.NullString
		var matchedAt sql.NullTime
		var matchLatencyMS sql.NullInt64
		if err := rows.Scan(
			&ride.ID, &ride.PickupLat, &ride.PickupLon, &ride.DropoffLat, &ride.DropoffLon,
			&ride.Region, &ride.PickupDatetime, &ride.RealTripDurationSeconds, &ride.Status, &assignedDriverID, &ride.Retries,
			&ride.RequestedAt, &matchedAt, &matchLatencyMS,
		); err != nil {
			return nil, err
		}
		if assignedDriverID.Valid {
			ride.AssignedDriverID = &assignedDriverID.String
		}
		if matchedAt.Valid {
			t := matchedAt.Time
			ride.MatchedAt = &t
		}
		if matchLatencyMS.Valid {
			v := matchLatencyMS.Int64
			ride.MatchLatencyMS = &v
		}
		rides = append(rides, &ride)
	}
	return rides, rows.Err()
}

// CountByStatus returns ride counts grouped by status.
func (r *RideRepository) CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM rides GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RideStatus]int)
	for rows.Next() {
		var status domain.RideStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// AverageMatchLatencyMS returns the mean match_latency_ms across matched rides.
func (r *RideRepository) AverageMatchLatencyMS(ctx context.Context) (float64, bool, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT avg(match_latency_ms) FROM rides WHERE match_latency_ms IS NOT NULL`).Scan(&avg)
	if err != nil {
		return 0, false, err
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

var _ repository.RideRepository = (*RideRepository)(nil)
