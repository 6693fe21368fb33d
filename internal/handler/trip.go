package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatchsim/internal/repository"
)

const defaultTripListLimit = 100

// TripHandler serves the read-only completed-trip view for the dashboard.
type TripHandler struct {
	tripRepo repository.TripRepository
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripRepo repository.TripRepository) *TripHandler {
	return &TripHandler{tripRepo: tripRepo}
}

// TripResponse is the HTTP response for trip data.
type TripResponse struct {
	ID                       string  `json:"id"`
	RideID                   string  `json:"ride_id"`
	DriverID                 string  `json:"driver_id"`
	DistanceKM               float64 `json:"distance_km"`
	Fare                     string  `json:"fare"`
	SimulatedDurationSeconds float64 `json:"simulated_duration_seconds"`
	StartedAt                string  `json:"started_at"`
	EndedAt                  string  `json:"ended_at"`
}

// GetAll handles GET /api/trips?limit=N
func (h *TripHandler) GetAll(c *gin.Context) {
	limit := defaultTripListLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trips, err := h.tripRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, t := range trips {
		response = append(response, TripResponse{
			ID:                       t.ID,
			RideID:                   t.RideID,
			DriverID:                 t.DriverID,
			DistanceKM:               t.DistanceKM,
			Fare:                     t.Fare.StringFixed(2),
			SimulatedDurationSeconds: t.SimulatedDurationSeconds,
			StartedAt:                t.StartedAt.Format(timeLayout),
			EndedAt:                  t.EndedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, response)
}
