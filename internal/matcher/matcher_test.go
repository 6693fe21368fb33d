package matcher

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"dispatchsim/internal/domain"
	"dispatchsim/internal/repository"
)

// fakeDriverRepo is a minimal in-memory repository.DriverRepository. The
// transactional methods are not exercised by these tests (they require a
// real *sql.Tx) and panic if called, so a missing early-exit shows up loudly.
type fakeDriverRepo struct {
	mu      sync.Mutex
	drivers map[string]*domain.Driver
}

func newFakeDriverRepo(drivers ...*domain.Driver) *fakeDriverRepo {
	r := &fakeDriverRepo{drivers: make(map[string]*domain.Driver)}
	for _, d := range drivers {
		r.drivers[d.ID] = d
	}
	return r
}

func (r *fakeDriverRepo) Create(ctx context.Context, d *domain.Driver) error { return nil }

func (r *fakeDriverRepo) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.drivers[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeDriverRepo) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Driver, error) {
	panic("not used by unit tests without a real transaction")
}

func (r *fakeDriverRepo) ListAvailableSample(ctx context.Context, region, limit int) ([]*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Driver
	for _, d := range r.drivers {
		if d.Status == domain.DriverStatusAvailable && d.Region == region {
			cp := *d
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeDriverRepo) ListAll(ctx context.Context) ([]*domain.Driver, error) { return nil, nil }

func (r *fakeDriverRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus) error {
	panic("not used by unit tests without a real transaction")
}

func (r *fakeDriverRepo) UpdateStatusAndLocation(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus, lat, lon float64) error {
	panic("not used by unit tests without a real transaction")
}

func (r *fakeDriverRepo) DeleteAll(ctx context.Context) error { return nil }
func (r *fakeDriverRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drivers), nil
}

// fakeRideRepo implements the slice of repository.RideRepository matcher
// touches, panicking on the transactional methods for the same reason.
type fakeRideRepo struct{}

func (fakeRideRepo) UpsertRequested(ctx context.Context, tx *sql.Tx, ride *domain.Ride) error {
	return nil
}
func (fakeRideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return nil, repository.ErrNotFound
}
func (fakeRideRepo) RecordMatch(ctx context.Context, tx *sql.Tx, rideID, driverID string, matchedAt time.Time, latencyMS int64) (bool, error) {
	panic("not used by unit tests without a real transaction")
}
func (fakeRideRepo) ConfirmAssigned(ctx context.Context, tx *sql.Tx, rideID, driverID string) (bool, error) {
	panic("not used by unit tests without a real transaction")
}
func (fakeRideRepo) IncrementRetriesIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	panic("not used by unit tests without a real transaction")
}
func (fakeRideRepo) ExpireIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	panic("not used by unit tests without a real transaction")
}
func (fakeRideRepo) SetEnRoute(ctx context.Context, tx *sql.Tx, id string) error {
	panic("not used by unit tests without a real transaction")
}
func (fakeRideRepo) Complete(ctx context.Context, tx *sql.Tx, id string) error {
	panic("not used by unit tests without a real transaction")
}
func (fakeRideRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	return nil, nil
}
func (fakeRideRepo) CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error) {
	return nil, nil
}
func (fakeRideRepo) AverageMatchLatencyMS(ctx context.Context) (float64, bool, error) {
	return 0, false, nil
}

// fakeBusySet is an in-memory busyset.Interface.
type fakeBusySet struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newFakeBusySet(busy ...string) *fakeBusySet {
	s := &fakeBusySet{busy: make(map[string]struct{})}
	for _, id := range busy {
		s.busy[id] = struct{}{}
	}
	return s
}

func (s *fakeBusySet) TryAcquire(ctx context.Context, driverID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[driverID]; ok {
		return false, nil
	}
	s.busy[driverID] = struct{}{}
	return true, nil
}

func (s *fakeBusySet) Release(ctx context.Context, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, driverID)
	return nil
}

func (s *fakeBusySet) Members(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.busy))
	for id := range s.busy {
		out = append(out, id)
	}
	return out, nil
}

func (s *fakeBusySet) IsBusy(ctx context.Context, driverID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.busy[driverID]
	return ok, nil
}

func (s *fakeBusySet) ResetTo(ctx context.Context, driverIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = make(map[string]struct{}, len(driverIDs))
	for _, id := range driverIDs {
		s.busy[id] = struct{}{}
	}
	return nil
}

func testRide() *domain.Ride {
	return &domain.Ride{
		ID:          "ride-1",
		PickupLat:   40.75,
		PickupLon:   -73.98,
		DropoffLat:  40.76,
		DropoffLon:  -73.96,
		Status:      domain.RideStatusRequested,
		RequestedAt: time.Now(),
	}
}

func TestMatch_NoCandidates_ReturnsNoDriverAvailable(t *testing.T) {
	drivers := newFakeDriverRepo() // empty
	m, err := New(nil, drivers, fakeRideRepo{}, newFakeBusySet(), nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = m.Match(context.Background(), testRide())
	if err != ErrNoDriverAvailable {
		t.Fatalf("expected ErrNoDriverAvailable, got %v", err)
	}
}

func TestMatch_AllCandidatesBusy_ReturnsNoDriverAvailable(t *testing.T) {
	ride := testRide()
	driver := &domain.Driver{ID: "d1", Lat: 40.749, Lon: -73.991, Region: 2, Status: domain.DriverStatusAvailable}
	drivers := newFakeDriverRepo(driver)

	m, err := New(nil, drivers, fakeRideRepo{}, newFakeBusySet(driver.ID), nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = m.Match(context.Background(), ride)
	if err != ErrNoDriverAvailable {
		t.Fatalf("expected ErrNoDriverAvailable for an all-busy pool, got %v", err)
	}
}

func TestMatch_RegionMismatch_ExcludesDriver(t *testing.T) {
	ride := testRide() // pickup (-73.98,40.75) buckets to region 2 (lon<split, lat>=split)
	farDriver := &domain.Driver{ID: "d-far", Lat: 40.9, Lon: -73.7, Region: 3, Status: domain.DriverStatusAvailable}
	drivers := newFakeDriverRepo(farDriver)

	m, err := New(nil, drivers, fakeRideRepo{}, newFakeBusySet(), nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = m.Match(context.Background(), ride)
	if err != ErrNoDriverAvailable {
		t.Fatalf("expected ErrNoDriverAvailable when the only driver is in another region, got %v", err)
	}
}

func TestMatch_CandidateScanPopulatesCache(t *testing.T) {
	ride := testRide()
	driver := &domain.Driver{ID: "d1", Lat: 40.749, Lon: -73.991, Region: 2, Status: domain.DriverStatusAvailable}
	drivers := newFakeDriverRepo(driver)
	busy := newFakeBusySet(driver.ID) // busy, so Match short-circuits but still populates the cache

	m, err := New(nil, drivers, fakeRideRepo{}, busy, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = m.Match(context.Background(), ride)

	if _, ok := m.cache.Get(driver.ID); !ok {
		t.Fatal("expected candidate scan to populate the read-through cache")
	}
}
