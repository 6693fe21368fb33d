// Package matcher implements the nearest-driver matching algorithm: a
// pre-transaction candidate scan and ranking, a cheap busy-set
// pre-filter, and a serializable transaction that performs the
// authoritative row-locked handoff.
package matcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"dispatchsim/internal/busyset"
	"dispatchsim/internal/domain"
	"dispatchsim/internal/geo"
	"dispatchsim/internal/geoindex"
	"dispatchsim/internal/repository"
	"dispatchsim/internal/store"
)

// ErrNoDriverAvailable is returned when no driver could be matched to the
// ride — the Go stand-in for the algorithm's NONE outcome.
var ErrNoDriverAvailable = errors.New("matcher: no driver available")

// errLostRace is returned from inside a matching transaction when the
// authoritative re-check fails; it is never retried, only translated to
// ErrNoDriverAvailable by Match.
var errLostRace = errors.New("matcher: lost race on acquired driver")

const (
	candidateScanLimit  = 50
	defaultMaxNearest   = 8
	preMatchDelayMinMS  = 100
	preMatchDelayMaxMS  = 300
	driverCacheCapacity = 4096
	geoNearbyRadiusKM   = 15
)

// Config tunes the matcher's candidate ranking.
type Config struct {
	// MaxNearestDrivers caps the proximity-ranked candidate list walked
	// for try_acquire. Spec range is 5-10; 0 uses the default of 8.
	MaxNearestDrivers int
}

// Matcher implements match_ride against a store.Gateway and busy-set.
type Matcher struct {
	gateway    *store.Gateway
	driverRepo repository.DriverRepository
	rideRepo   repository.RideRepository
	busySet    busyset.Interface
	geoIndex   *geoindex.Index
	cache      *lru.Cache[string, *domain.Driver]
	maxNearest int
}

// New builds a Matcher. geoIndex may be nil to disable the geo-search
// narrowing filter ahead of the Postgres candidate scan.
func New(gateway *store.Gateway, driverRepo repository.DriverRepository, rideRepo repository.RideRepository, busySet busyset.Interface, geoIndex *geoindex.Index, cfg Config) (*Matcher, error) {
	maxNearest := cfg.MaxNearestDrivers
	if maxNearest <= 0 {
		maxNearest = defaultMaxNearest
	}
	cache, err := lru.New[string, *domain.Driver](driverCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("matcher: build driver cache: %w", err)
	}
	return &Matcher{
		gateway:    gateway,
		driverRepo: driverRepo,
		rideRepo:   rideRepo,
		busySet:    busySet,
		geoIndex:   geoIndex,
		cache:      cache,
		maxNearest: maxNearest,
	}, nil
}

// candidate pairs a driver with its distance to the ride's pickup.
type candidate struct {
	driver   *domain.Driver
	distance float64
}

// Match attempts to assign a driver to ride. On success it returns the
// driver ID; the matcher has already committed the handoff (driver
// MATCHING at the pickup location, ride stamped with assigned_driver_id /
// matched_at / match_latency_ms, still REQUESTED). The caller (the
// ride-worker) is responsible for the subsequent ASSIGNED transition and
// for releasing the busy-set entry on every exit path.
func (m *Matcher) Match(ctx context.Context, ride *domain.Ride) (string, error) {
	t0 := time.Now()

	// Step 1: pre-matching delay, outside any transaction.
	delay := time.Duration(preMatchDelayMinMS+rand.Intn(preMatchDelayMaxMS-preMatchDelayMinMS)) * time.Millisecond
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(delay):
	}

	// Step 2: snapshot the busy-set.
	busy, err := m.busySet.Members(ctx)
	if err != nil {
		return "", fmt.Errorf("matcher: snapshot busy-set: %w", err)
	}
	busySet := make(map[string]struct{}, len(busy))
	for _, id := range busy {
		busySet[id] = struct{}{}
	}

	// Step 3: bounded, region-restricted candidate scan.
	region := geo.Region(ride.PickupLon, ride.PickupLat)
	pool, err := m.driverRepo.ListAvailableSample(ctx, region, candidateScanLimit)
	if err != nil {
		return "", fmt.Errorf("matcher: candidate scan: %w", err)
	}

	// Step 3b: when a geo index is configured, narrow the pool to drivers
	// it reports within range of pickup. A failed or empty lookup falls
	// back to the full Postgres-scanned pool rather than blocking the
	// match — the geo index is a narrowing optimization, never the
	// authoritative candidate source.
	var nearby map[string]struct{}
	if m.geoIndex != nil {
		if ids, err := m.geoIndex.Nearby(ctx, ride.PickupLat, ride.PickupLon, geoNearbyRadiusKM); err == nil && len(ids) > 0 {
			nearby = make(map[string]struct{}, len(ids))
			for _, id := range ids {
				nearby[id] = struct{}{}
			}
		}
	}

	var candidates []candidate
	for _, d := range pool {
		m.cache.Add(d.ID, d)
		if _, busy := busySet[d.ID]; busy {
			continue
		}
		if nearby != nil {
			if _, ok := nearby[d.ID]; !ok {
				continue
			}
		}
		candidates = append(candidates, candidate{
			driver:   d,
			distance: geo.Haversine(ride.PickupLon, ride.PickupLat, d.Lon, d.Lat),
		})
	}

	// A geo index that reports no match within radius (e.g. it hasn't been
	// populated yet, or the fleet genuinely thinned out) should not starve
	// matching — retry the ranking against the full pool once before
	// giving up.
	if len(candidates) == 0 && nearby != nil {
		for _, d := range pool {
			if _, busy := busySet[d.ID]; busy {
				continue
			}
			candidates = append(candidates, candidate{
				driver:   d,
				distance: geo.Haversine(ride.PickupLon, ride.PickupLat, d.Lon, d.Lat),
			})
		}
	}

	// Step 4.
	if len(candidates) == 0 {
		return "", ErrNoDriverAvailable
	}

	// Step 5: rank by distance, stable so ties preserve scan order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > m.maxNearest {
		candidates = candidates[:m.maxNearest]
	}

	// Step 6: walk ranked list, try_acquire each until one succeeds.
	for _, c := range candidates {
		acquired, err := m.busySet.TryAcquire(ctx, c.driver.ID)
		if err != nil {
			return "", fmt.Errorf("matcher: try_acquire %s: %w", c.driver.ID, err)
		}
		if !acquired {
			continue
		}

		driverID, err := m.assign(ctx, ride, c.driver.ID, t0)
		if err == nil {
			m.cache.Remove(c.driver.ID)
			return driverID, nil
		}

		// Step 8: unconditional release on any non-success path.
		if relErr := m.busySet.Release(ctx, c.driver.ID); relErr != nil {
			return "", fmt.Errorf("matcher: release %s after failed assign: %w", c.driver.ID, relErr)
		}
		if errors.Is(err, errLostRace) {
			continue
		}
		return "", err
	}

	return "", ErrNoDriverAvailable
}

// GetDriver returns a driver by ID, preferring the read-through cache
// populated by recent candidate scans over a trip to Postgres.
func (m *Matcher) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	if d, ok := m.cache.Get(id); ok {
		return d, nil
	}
	d, err := m.driverRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cache.Add(id, d)
	return d, nil
}

// assign runs the step-7 serializable transaction: row-locked re-check,
// driver -> MATCHING, and the ride's match stamp.
func (m *Matcher) assign(ctx context.Context, ride *domain.Ride, driverID string, t0 time.Time) (string, error) {
	_, err := m.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		driver, err := m.driverRepo.GetByIDForUpdate(ctx, tx, driverID)
		if err != nil {
			return nil, err
		}
		if driver.Status != domain.DriverStatusAvailable {
			return nil, errLostRace
		}

		if err := m.driverRepo.UpdateStatusAndLocation(ctx, tx, driverID, domain.DriverStatusMatching, ride.PickupLat, ride.PickupLon); err != nil {
			return nil, err
		}

		latencyMS := time.Since(t0).Milliseconds()
		applied, err := m.rideRepo.RecordMatch(ctx, tx, ride.ID, driverID, time.Now(), latencyMS)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, errLostRace
		}
		return driverID, nil
	})
	if err != nil {
		return "", err
	}
	if m.geoIndex != nil {
		_ = m.geoIndex.Update(ctx, driverID, ride.PickupLat, ride.PickupLon)
	}
	return driverID, nil
}
