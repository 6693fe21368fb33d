package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"dispatchsim/internal/domain"
	"dispatchsim/internal/repository"
)

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	db *sql.DB
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Insert writes a trip row idempotently: ON CONFLICT (ride_id) DO NOTHING
// means a retried completion (e.g. after a crash between trip insert and
// ride status update) never produces a second trip for the same ride.
func (r *TripRepository) Insert(ctx context.Context, tx *sql.Tx, trip *domain.Trip) (bool, error) {
	query := `
		INSERT INTO trips (id, ride_id, driver_id, distance_km, fare, simulated_duration_seconds, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ride_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query,
		trip.ID, trip.RideID, trip.DriverID, trip.DistanceKM, trip.Fare,
		trip.SimulatedDurationSeconds, trip.StartedAt, trip.EndedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByRideID retrieves the trip for a ride, if one exists.
func (r *TripRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Trip, error) {
	query := `
		SELECT id, ride_id, driver_id, distance_km, fare, simulated_duration_seconds, started_at, ended_at
		FROM trips WHERE ride_id = $1
	`
	return scanTrip(r.db.QueryRowContext(ctx, query, rideID))
}

func scanTrip(row *sql.Row) (*domain.Trip, error) {
	var t domain.Trip
	var fareStr string
	if err := row.Scan(&t.ID, &t.RideID, &t.DriverID, &t.DistanceKM, &fareStr, &t.SimulatedDurationSeconds, &t.StartedAt, &t.EndedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	fare, err := decimal.NewFromString(fareStr)
	if err != nil {
		return nil, err
	}
	t.Fare = fare
	return &t, nil
}

// ListRecent returns the most recently completed trips, newest first.
func (r *TripRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Trip, error) {
	query := `
		SELECT id, ride_id, driver_id, distance_km, fare, simulated_duration_seconds, started_at, ended_at
		FROM trips ORDER BY ended_at DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		var t domain.Trip
		var fareStr string
		if err := rows.Scan(&t.ID, &t.RideID, &t.DriverID, &t.DistanceKM, &fareStr, &t.SimulatedDurationSeconds, &t.StartedAt, &t.EndedAt); err != nil {
			return nil, err
		}
		fare, err := decimal.NewFromString(fareStr)
		if err != nil {
			return nil, err
		}
		t.Fare = fare
		trips = append(trips, &t)
	}
	return trips, rows.Err()
}

// Count returns the total number of completed trips.
func (r *TripRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM trips`).Scan(&n)
	return n, err
}

var _ repository.TripRepository = (*TripRepository)(nil)
