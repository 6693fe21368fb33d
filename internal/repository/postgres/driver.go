package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dispatchsim/internal/domain"
	"dispatchsim/internal/geo"
	"dispatchsim/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	db *sql.DB
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `INSERT INTO drivers (id, lat, lon, region, status, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	region := geo.Region(driver.Lon, driver.Lat)
	_, err := r.db.ExecContext(ctx, query, driver.ID, driver.Lat, driver.Lon, region, driver.Status, driver.UpdatedAt)
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT id, lat, lon, region, status, updated_at FROM drivers WHERE id = $1`
	return scanDriver(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate retrieves a driver and locks its row within tx. This is
// the authoritative check in the matcher's two-level mutual exclusion: the
// busy-set pre-filter is cheap but advisory, this row lock is what actually
// prevents double assignment.
func (r *DriverRepository) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Driver, error) {
	query := `SELECT id, lat, lon, region, status, updated_at FROM drivers WHERE id = $1 FOR UPDATE`
	return scanDriver(tx.QueryRowContext(ctx, query, id))
}

func scanDriver(row *sql.Row) (*domain.Driver, error) {
	var d domain.Driver
	if err := row.Scan(&d.ID, &d.Lat, &d.Lon, &d.Region, &d.Status, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListAvailableSample returns up to limit AVAILABLE drivers in region, in
// randomized order, mirroring the reference matcher's
// "ORDER BY random() LIMIT 50" candidate scan.
func (r *DriverRepository) ListAvailableSample(ctx context.Context, region, limit int) ([]*domain.Driver, error) {
	query := `
		SELECT id, lat, lon, region, status, updated_at
		FROM drivers
		WHERE status = $1 AND region = $2
		ORDER BY random()
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, domain.DriverStatusAvailable, region, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		var d domain.Driver
		if err := rows.Scan(&d.ID, &d.Lat, &d.Lon, &d.Region, &d.Status, &d.UpdatedAt); err != nil {
			return nil, err
		}
		drivers = append(drivers, &d)
	}
	return drivers, rows.Err()
}

// ListAll returns every driver.
func (r *DriverRepository) ListAll(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT id, lat, lon, region, status, updated_at FROM drivers ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		var d domain.Driver
		if err := rows.Scan(&d.ID, &d.Lat, &d.Lon, &d.Region, &d.Status, &d.UpdatedAt); err != nil {
			return nil, err
		}
		drivers = append(drivers, &d)
	}
	return drivers, rows.Err()
}

// UpdateStatus sets a driver's status unconditionally. tx may be nil, in
// which case the pool handle is used directly (e.g. init-drivers seeding).
func (r *DriverRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus) error {
	q := querierOf(r.db, tx)
	query := `UPDATE drivers SET status = $1, updated_at = now() WHERE id = $2`
	result, err := q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// UpdateStatusAndLocation sets a driver's status and position, recomputing
// its region so the candidate scan stays accurate.
func (r *DriverRepository) UpdateStatusAndLocation(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus, lat, lon float64) error {
	q := querierOf(r.db, tx)
	query := `UPDATE drivers SET status = $1, lat = $2, lon = $3, region = $4, updated_at = now() WHERE id = $5`
	result, err := q.ExecContext(ctx, query, status, lat, lon, geo.Region(lon, lat), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// DeleteAll removes every driver row.
func (r *DriverRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drivers`)
	return err
}

// Count returns the total number of driver rows.
func (r *DriverRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM drivers`).Scan(&n)
	return n, err
}

var _ repository.DriverRepository = (*DriverRepository)(nil)
