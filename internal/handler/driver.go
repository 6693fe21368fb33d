package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatchsim/internal/repository"
)

// DriverHandler serves the read-only driver views for the dashboard.
type DriverHandler struct {
	driverRepo repository.DriverRepository
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverRepo repository.DriverRepository) *DriverHandler {
	return &DriverHandler{driverRepo: driverRepo}
}

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Region int     `json:"region"`
	Status string  `json:"status"`
}

// GetAll handles GET /api/drivers
func (h *DriverHandler) GetAll(c *gin.Context) {
	drivers, err := h.driverRepo.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DriverResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, DriverResponse{
			ID:     d.ID,
			Lat:    d.Lat,
			Lon:    d.Lon,
			Region: d.Region,
			Status: string(d.Status),
		})
	}

	c.JSON(http.StatusOK, response)
}
