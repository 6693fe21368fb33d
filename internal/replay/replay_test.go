package replay

import (
	"testing"
	"time"

	"dispatchsim/internal/domain"
)

func TestNew_AppliesDefaultsWhenConfigZero(t *testing.T) {
	s := New(nil, nil, nil, nil, Config{})
	if s.maxConcurrency != defaultMaxConcurrency {
		t.Fatalf("expected default max concurrency %d, got %d", defaultMaxConcurrency, s.maxConcurrency)
	}
	if s.reconcileInterval != defaultReconcileInterval {
		t.Fatalf("expected default reconcile interval %v, got %v", defaultReconcileInterval, s.reconcileInterval)
	}
	if s.limiter == nil {
		t.Fatal("expected a non-nil rate limiter")
	}
}

func TestNew_HonorsExplicitConfig(t *testing.T) {
	cfg := Config{MaxConcurrency: 7, RatePerSecond: 3, ReconcileInterval: 5 * time.Second}
	s := New(nil, nil, nil, nil, cfg)
	if s.maxConcurrency != 7 {
		t.Fatalf("expected max concurrency 7, got %d", s.maxConcurrency)
	}
	if s.reconcileInterval != 5*time.Second {
		t.Fatalf("expected reconcile interval 5s, got %v", s.reconcileInterval)
	}
}

func TestNewRideFromHistorical_DerivesRealTripDuration(t *testing.T) {
	pickup := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	dropoff := pickup.Add(20 * time.Minute)
	row := domain.HistoricalRide{
		RideID:          "hist-1",
		PickupDatetime:  pickup,
		DropoffDatetime: dropoff,
		PickupLat:       40.75,
		PickupLon:       -73.98,
		DropoffLat:      40.76,
		DropoffLon:      -73.96,
	}

	ride := newRideFromHistorical(row)

	if ride.ID != row.RideID {
		t.Fatalf("expected ride ID %s, got %s", row.RideID, ride.ID)
	}
	if ride.RealTripDurationSeconds != 1200 {
		t.Fatalf("expected real trip duration of 1200s, got %v", ride.RealTripDurationSeconds)
	}
	if ride.Status != domain.RideStatusRequested {
		t.Fatalf("expected new ride to start REQUESTED, got %s", ride.Status)
	}
}
