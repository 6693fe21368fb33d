package repository

import (
	"context"
	"database/sql"
	"time"

	"dispatchsim/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// UpsertRequested inserts ride in REQUESTED state, or resets it back to
	// REQUESTED if the replay run is restarting a ride it had already
	// begun — this is what makes rideworker.Worker.Run idempotent across
	// restarts.
	UpsertRequested(ctx context.Context, tx *sql.Tx, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// RecordMatch stamps assigned_driver_id, matched_at and
	// match_latency_ms on a still-REQUESTED ride, without moving its
	// status — the matcher's half of the handoff. Returns applied=false
	// (no error) if the ride was no longer REQUESTED.
	RecordMatch(ctx context.Context, tx *sql.Tx, rideID, driverID string, matchedAt time.Time, latencyMS int64) (applied bool, err error)

	// ConfirmAssigned conditionally transitions a ride REQUESTED ->
	// ASSIGNED once the ride-worker has observed its own match. Returns
	// applied=false (no error) if the ride was no longer REQUESTED or
	// assigned to a different driver, which signals the caller lost the
	// race and must release its driver lock.
	ConfirmAssigned(ctx context.Context, tx *sql.Tx, rideID, driverID string) (applied bool, err error)

	// IncrementRetriesIfUnmatched bumps the retry counter, but only while
	// assigned_driver_id IS NULL AND status = 'REQUESTED' — idempotent
	// under concurrent progress, so a stale poll can't clobber a ride
	// another goroutine has already advanced.
	IncrementRetriesIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (applied bool, err error)

	// ExpireIfUnmatched conditionally transitions a ride REQUESTED ->
	// EXPIRED, but only while assigned_driver_id IS NULL AND status =
	// 'REQUESTED'. Returns applied=false if the ride was matched in the
	// same instant the match-loop timeout fired.
	ExpireIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (applied bool, err error)

	// SetEnRoute transitions a ride ASSIGNED -> EN_ROUTE.
	SetEnRoute(ctx context.Context, tx *sql.Tx, id string) error

	// Complete transitions a ride to COMPLETED and resets retries, the
	// final step of the COMPLETE transaction alongside the trip insert
	// and the driver's release back to AVAILABLE.
	Complete(ctx context.Context, tx *sql.Tx, id string) error

	// ListRecent returns the most recently requested rides, newest first,
	// for the dashboard read-side.
	ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error)

	// CountByStatus returns ride counts grouped by status, for metrics.
	CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error)

	// AverageMatchLatencyMS returns the mean match_latency_ms across rides
	// that have been matched, or 0, false if none have.
	AverageMatchLatencyMS(ctx context.Context) (float64, bool, error)
}
