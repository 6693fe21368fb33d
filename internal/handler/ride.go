package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatchsim/internal/repository"
)

const defaultRideListLimit = 100

// RideHandler serves the read-only ride views for the dashboard. Rides only
// enter the system through the replay scheduler; there is no POST endpoint
// for creating one by hand.
type RideHandler struct {
	rideRepo repository.RideRepository
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideRepo repository.RideRepository) *RideHandler {
	return &RideHandler{rideRepo: rideRepo}
}

// RideResponse is the HTTP response for ride data.
type RideResponse struct {
	ID               string  `json:"id"`
	PickupLat        float64 `json:"pickup_lat"`
	PickupLon        float64 `json:"pickup_lon"`
	DropoffLat       float64 `json:"dropoff_lat"`
	DropoffLon       float64 `json:"dropoff_lon"`
	Region           int     `json:"region"`
	Status           string  `json:"status"`
	AssignedDriverID string  `json:"assigned_driver_id,omitempty"`
	Retries          int     `json:"retries"`
	MatchLatencyMS   int64   `json:"match_latency_ms,omitempty"`
}

// GetAll handles GET /api/rides?limit=N
func (h *RideHandler) GetAll(c *gin.Context) {
	limit := defaultRideListLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	rides, err := h.rideRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		resp := RideResponse{
			ID:         r.ID,
			PickupLat:  r.PickupLat,
			PickupLon:  r.PickupLon,
			DropoffLat: r.DropoffLat,
			DropoffLon: r.DropoffLon,
			Region:     r.Region,
			Status:     string(r.Status),
			Retries:    r.Retries,
		}
		if r.AssignedDriverID != nil {
			resp.AssignedDriverID = *r.AssignedDriverID
		}
		if r.MatchLatencyMS != nil {
			resp.MatchLatencyMS = *r.MatchLatencyMS
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, response)
}

// GetByID handles GET /api/rides/:id
func (h *RideHandler) GetByID(c *gin.Context) {
	ride, err := h.rideRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := RideResponse{
		ID:         ride.ID,
		PickupLat:  ride.PickupLat,
		PickupLon:  ride.PickupLon,
		DropoffLat: ride.DropoffLat,
		DropoffLon: ride.DropoffLon,
		Region:     ride.Region,
		Status:     string(ride.Status),
		Retries:    ride.Retries,
	}
	if ride.AssignedDriverID != nil {
		resp.AssignedDriverID = *ride.AssignedDriverID
	}
	if ride.MatchLatencyMS != nil {
		resp.MatchLatencyMS = *ride.MatchLatencyMS
	}

	respondJSON(c, http.StatusOK, resp)
}
