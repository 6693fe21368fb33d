package repository

import (
	"context"
	"database/sql"

	"dispatchsim/internal/domain"
)

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Insert writes a trip row idempotently (ON CONFLICT (ride_id) DO
	// NOTHING). Returns inserted=false when a trip for this ride already
	// existed, so callers can tell a retried completion from the first.
	Insert(ctx context.Context, tx *sql.Tx, trip *domain.Trip) (inserted bool, err error)

	// GetByRideID retrieves the trip for a ride, if one exists.
	GetByRideID(ctx context.Context, rideID string) (*domain.Trip, error)

	// ListRecent returns the most recently completed trips, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Trip, error)

	// Count returns the total number of completed trips.
	Count(ctx context.Context) (int, error)
}
