package seed

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"dispatchsim/internal/domain"
)

type fakeDriverRepo struct {
	mu      sync.Mutex
	drivers []*domain.Driver
	cleared bool
}

func (r *fakeDriverRepo) Create(ctx context.Context, d *domain.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append(r.drivers, d)
	return nil
}
func (r *fakeDriverRepo) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	return nil, nil
}
func (r *fakeDriverRepo) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Driver, error) {
	panic("not used by these tests")
}
func (r *fakeDriverRepo) ListAvailableSample(ctx context.Context, region, limit int) ([]*domain.Driver, error) {
	return nil, nil
}
func (r *fakeDriverRepo) ListAll(ctx context.Context) ([]*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drivers, nil
}
func (r *fakeDriverRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus) error {
	panic("not used by these tests")
}
func (r *fakeDriverRepo) UpdateStatusAndLocation(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus, lat, lon float64) error {
	panic("not used by these tests")
}
func (r *fakeDriverRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = true
	r.drivers = nil
	return nil
}
func (r *fakeDriverRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drivers), nil
}

type fakeBusySet struct {
	resetCalls int
}

func (s *fakeBusySet) TryAcquire(ctx context.Context, driverID string) (bool, error) { return true, nil }
func (s *fakeBusySet) Release(ctx context.Context, driverID string) error            { return nil }
func (s *fakeBusySet) Members(ctx context.Context) ([]string, error)                 { return nil, nil }
func (s *fakeBusySet) IsBusy(ctx context.Context, driverID string) (bool, error)      { return false, nil }
func (s *fakeBusySet) ResetTo(ctx context.Context, driverIDs []string) error {
	s.resetCalls++
	return nil
}

func TestInitDrivers_CreatesRequestedCount(t *testing.T) {
	drivers := &fakeDriverRepo{}
	if err := InitDrivers(context.Background(), drivers, nil, nil, 5, false); err != nil {
		t.Fatalf("InitDrivers: %v", err)
	}
	if len(drivers.drivers) != 5 {
		t.Fatalf("expected 5 drivers created, got %d", len(drivers.drivers))
	}
	for _, d := range drivers.drivers {
		if d.Status != domain.DriverStatusAvailable {
			t.Fatalf("expected AVAILABLE status, got %s", d.Status)
		}
		if d.Lon < nycMinLon-positionJitter || d.Lon > nycMaxLon+positionJitter {
			t.Fatalf("driver longitude %v out of expected NYC bounding box range", d.Lon)
		}
	}
}

func TestInitDrivers_ClearExisting_ResetsBusySet(t *testing.T) {
	drivers := &fakeDriverRepo{}
	busy := &fakeBusySet{}
	if err := InitDrivers(context.Background(), drivers, busy, nil, 2, true); err != nil {
		t.Fatalf("InitDrivers: %v", err)
	}
	if !drivers.cleared {
		t.Fatal("expected DeleteAll to have been called")
	}
	if busy.resetCalls != 1 {
		t.Fatalf("expected ResetTo to be called once, got %d", busy.resetCalls)
	}
}
