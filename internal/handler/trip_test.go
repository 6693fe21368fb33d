package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dispatchsim/internal/domain"
)

// fakeTripRepo is a minimal in-memory repository.TripRepository stand-in.
type fakeTripRepo struct {
	recent []*domain.Trip
	err    error
}

func (r *fakeTripRepo) Insert(ctx context.Context, tx *sql.Tx, trip *domain.Trip) (bool, error) {
	panic("unused")
}
func (r *fakeTripRepo) GetByRideID(ctx context.Context, rideID string) (*domain.Trip, error) {
	panic("unused")
}
func (r *fakeTripRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Trip, error) {
	if r.err != nil {
		return nil, r.err
	}
	if limit < len(r.recent) {
		return r.recent[:limit], nil
	}
	return r.recent, nil
}
func (r *fakeTripRepo) Count(ctx context.Context) (int, error) { panic("unused") }

func TestTripHandlerGetAll(t *testing.T) {
	fare, _ := decimal.NewFromString("12.50")
	started := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	ended := started.Add(5 * time.Minute)
	repo := &fakeTripRepo{recent: []*domain.Trip{
		{ID: "t1", RideID: "r1", DriverID: "d1", DistanceKM: 4.2, Fare: fare, SimulatedDurationSeconds: 30, StartedAt: started, EndedAt: ended},
	}}
	h := NewTripHandler(repo)

	router := newTestRouter()
	router.GET("/api/trips", h.GetAll)

	req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got []TripResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 trip, got %d", len(got))
	}
	if got[0].Fare != "12.50" {
		t.Errorf("expected fare 12.50, got %s", got[0].Fare)
	}
}
