package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dispatchsim/internal/domain"
	"dispatchsim/internal/repository"
)

// fakeRideRepo is a minimal in-memory repository.RideRepository stand-in.
// Only the two read methods the handler calls are wired; the write paths
// panic since a handler test should never reach them.
type fakeRideRepo struct {
	byID   map[string]*domain.Ride
	recent []*domain.Ride
	err    error
}

func (r *fakeRideRepo) UpsertRequested(ctx context.Context, tx *sql.Tx, ride *domain.Ride) error {
	panic("unused")
}
func (r *fakeRideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	if r.err != nil {
		return nil, r.err
	}
	ride, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ride, nil
}
func (r *fakeRideRepo) RecordMatch(ctx context.Context, tx *sql.Tx, rideID, driverID string, matchedAt time.Time, latencyMS int64) (bool, error) {
	panic("unused")
}
func (r *fakeRideRepo) ConfirmAssigned(ctx context.Context, tx *sql.Tx, rideID, driverID string) (bool, error) {
	panic("unused")
}
func (r *fakeRideRepo) IncrementRetriesIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	panic("unused")
}
func (r *fakeRideRepo) ExpireIfUnmatched(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	panic("unused")
}
func (r *fakeRideRepo) SetEnRoute(ctx context.Context, tx *sql.Tx, id string) error {
	panic("unused")
}
func (r *fakeRideRepo) Complete(ctx context.Context, tx *sql.Tx, id string) error {
	panic("unused")
}
func (r *fakeRideRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	if r.err != nil {
		return nil, r.err
	}
	if limit < len(r.recent) {
		return r.recent[:limit], nil
	}
	return r.recent, nil
}
func (r *fakeRideRepo) CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error) {
	panic("unused")
}
func (r *fakeRideRepo) AverageMatchLatencyMS(ctx context.Context) (float64, bool, error) {
	panic("unused")
}

func TestRideHandlerGetByID(t *testing.T) {
	driverID := "d1"
	latency := int64(250)
	repo := &fakeRideRepo{byID: map[string]*domain.Ride{
		"r1": {
			ID:               "r1",
			PickupLat:        40.7,
			PickupLon:        -73.9,
			Status:           domain.RideStatusAssigned,
			AssignedDriverID: &driverID,
			MatchLatencyMS:   &latency,
		},
	}}
	h := NewRideHandler(repo)

	router := newTestRouter()
	router.GET("/api/rides/:id", h.GetByID)

	req := httptest.NewRequest(http.MethodGet, "/api/rides/r1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got RideResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.AssignedDriverID != "d1" || got.MatchLatencyMS != 250 {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestRideHandlerGetByIDNotFound(t *testing.T) {
	repo := &fakeRideRepo{byID: map[string]*domain.Ride{}}
	h := NewRideHandler(repo)

	router := newTestRouter()
	router.GET("/api/rides/:id", h.GetByID)

	req := httptest.NewRequest(http.MethodGet, "/api/rides/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRideHandlerGetAllLimitQuery(t *testing.T) {
	recent := make([]*domain.Ride, 0, 5)
	for i := 0; i < 5; i++ {
		recent = append(recent, &domain.Ride{ID: "r", Status: domain.RideStatusRequested})
	}
	repo := &fakeRideRepo{recent: recent}
	h := NewRideHandler(repo)

	router := newTestRouter()
	router.GET("/api/rides", h.GetAll)

	req := httptest.NewRequest(http.MethodGet, "/api/rides?limit=3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var got []RideResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rides, got %d", len(got))
	}
}
