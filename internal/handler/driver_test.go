package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"dispatchsim/internal/domain"
)

// fakeDriverRepo is a minimal in-memory repository.DriverRepository stand-in.
// Only ListAll is exercised by DriverHandler; the rest panic since a
// handler test should never reach them.
type fakeDriverRepo struct {
	drivers []*domain.Driver
	err     error
}

func (r *fakeDriverRepo) Create(ctx context.Context, d *domain.Driver) error { panic("unused") }
func (r *fakeDriverRepo) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	panic("unused")
}
func (r *fakeDriverRepo) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Driver, error) {
	panic("unused")
}
func (r *fakeDriverRepo) ListAvailableSample(ctx context.Context, region, limit int) ([]*domain.Driver, error) {
	panic("unused")
}
func (r *fakeDriverRepo) ListAll(ctx context.Context) ([]*domain.Driver, error) {
	return r.drivers, r.err
}
func (r *fakeDriverRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus) error {
	panic("unused")
}
func (r *fakeDriverRepo) UpdateStatusAndLocation(ctx context.Context, tx *sql.Tx, id string, status domain.DriverStatus, lat, lon float64) error {
	panic("unused")
}
func (r *fakeDriverRepo) DeleteAll(ctx context.Context) error { panic("unused") }
func (r *fakeDriverRepo) Count(ctx context.Context) (int, error) {
	panic("unused")
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestDriverHandlerGetAll(t *testing.T) {
	repo := &fakeDriverRepo{drivers: []*domain.Driver{
		{ID: "d1", Lat: 40.7, Lon: -73.9, Region: 3, Status: domain.DriverStatusAvailable},
		{ID: "d2", Lat: 40.8, Lon: -74.0, Region: 2, Status: domain.DriverStatusEnRoute},
	}}
	h := NewDriverHandler(repo)

	router := newTestRouter()
	router.GET("/api/drivers", h.GetAll)

	req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got []DriverResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(got))
	}
	if got[0].ID != "d1" || got[0].Status != "AVAILABLE" {
		t.Errorf("unexpected first driver: %+v", got[0])
	}
}

func TestDriverHandlerGetAllRepoError(t *testing.T) {
	repo := &fakeDriverRepo{err: sql.ErrConnDone}
	h := NewDriverHandler(repo)

	router := newTestRouter()
	router.GET("/api/drivers", h.GetAll)

	req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestDriverHandlerGetAllEmpty(t *testing.T) {
	repo := &fakeDriverRepo{drivers: nil}
	h := NewDriverHandler(repo)

	router := newTestRouter()
	router.GET("/api/drivers", h.GetAll)

	req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "[]" {
		t.Errorf("expected empty JSON array, got %q", w.Body.String())
	}
}
