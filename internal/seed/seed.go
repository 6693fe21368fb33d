// Package seed orchestrates the bulk-data pipeline the CLI drives: loading
// synthetic NYC trip rows, cleaning them into the replay-ready
// table, and initializing a driver fleet.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"dispatchsim/internal/busyset"
	"dispatchsim/internal/domain"
	"dispatchsim/internal/geo"
	"dispatchsim/internal/geoindex"
	"dispatchsim/internal/repository"
)

const (
	nycMinLon = -74.25
	nycMaxLon = -73.75
	nycMinLat = 40.40
	nycMaxLat = 40.80

	// positionJitter widens a driver's dropped pin by up to ~1km, matching
	// the reference init_drivers.py's +/-0.01 degree jitter.
	positionJitter = 0.02
)

// LoadSynthetic generates n synthetic raw trip rows for environments
// without a real NYC trip dataset to load.
func LoadSynthetic(ctx context.Context, repo repository.NycCleanRepository, n int) error {
	if err := repo.LoadSynthetic(ctx, n); err != nil {
		return fmt.Errorf("seed: load synthetic rows: %w", err)
	}
	return nil
}

// Clean copies qualifying staged rows into nyc_clean, returning how many
// rows passed the distance/fare/bounding-box filters.
func Clean(ctx context.Context, repo repository.NycCleanRepository) (int64, error) {
	n, err := repo.Clean(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: clean staged rows: %w", err)
	}
	return n, nil
}

// InitDrivers creates n AVAILABLE drivers spread across the NYC metro
// bounding box. When clearExisting is true, all existing driver rows and
// the busy-set are wiped first, mirroring original_source/src/init_drivers.py.
// geoIndex may be nil; when set, each new driver's position is recorded in
// it so the matcher's geo-search narrowing filter has data from the start.
func InitDrivers(ctx context.Context, driverRepo repository.DriverRepository, busySet busyset.Interface, geoIndex *geoindex.Index, n int, clearExisting bool) error {
	if clearExisting {
		if err := driverRepo.DeleteAll(ctx); err != nil {
			return fmt.Errorf("seed: clear existing drivers: %w", err)
		}
		if busySet != nil {
			if err := busySet.ResetTo(ctx, nil); err != nil {
				return fmt.Errorf("seed: clear busy-set: %w", err)
			}
		}
	}

	for i := 0; i < n; i++ {
		lon := nycMinLon + rand.Float64()*(nycMaxLon-nycMinLon)
		lat := nycMinLat + rand.Float64()*(nycMaxLat-nycMinLat)
		lon += (rand.Float64() - 0.5) * positionJitter
		lat += (rand.Float64() - 0.5) * positionJitter

		driver := &domain.Driver{
			ID:        uuid.NewString(),
			Lat:       lat,
			Lon:       lon,
			Region:    geo.Region(lon, lat),
			Status:    domain.DriverStatusAvailable,
			UpdatedAt: time.Now(),
		}
		if err := driverRepo.Create(ctx, driver); err != nil {
			return fmt.Errorf("seed: create driver %d/%d: %w", i+1, n, err)
		}
		if geoIndex != nil {
			_ = geoIndex.Update(ctx, driver.ID, driver.Lat, driver.Lon)
		}
	}

	return nil
}
