package repository

import (
	"context"
	"database/sql"

	"dispatchsim/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create adds a new driver.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDForUpdate retrieves a driver and locks its row (SELECT ... FOR
	// UPDATE). Must be called within a transaction; this is the
	// authoritative re-check in the matcher's two-level mutual exclusion.
	GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Driver, error)

	// ListAvailableSample returns up to limit AVAILABLE drivers in region,
	// in randomized order, for the matcher's candidate scan.
	ListAvailableSample(ctx context.Context, region, limit int) ([]*domain.Driver, error)

	// ListAll returns every driver, for the dashboard read-side and the
	// busy-set reconciliation sweep.
	ListAll(ctx context.Context) ([]*domain.Driver, error)

	// UpdateStatus sets a driver's status unconditionally.
	UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus) error

	// UpdateStatusAndLocation sets a driver's status and position, used
	// when the matcher moves a driver to a ride's pickup as MATCHING and
	// when a driver is freed at a ride's dropoff coordinates.
	UpdateStatusAndLocation(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus, lat, lon float64) error

	// DeleteAll removes every driver row. Used by the CLI's init-drivers
	// --clear flag.
	DeleteAll(ctx context.Context) error

	// Count returns the total number of driver rows.
	Count(ctx context.Context) (int, error)
}
