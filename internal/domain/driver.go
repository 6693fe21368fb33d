package domain

import "time"

// DriverStatus represents the current dispatch status of a driver.
type DriverStatus string

const (
	// DriverStatusAvailable means the driver is idle and may be matched.
	DriverStatusAvailable DriverStatus = "AVAILABLE"
	// DriverStatusMatching means a worker holds the driver: the matcher's
	// committed handoff sets it, and it stays until the ride worker frees
	// the driver back to AVAILABLE at the ride's dropoff.
	DriverStatusMatching DriverStatus = "MATCHING"
	// DriverStatusEnRoute means the driver is assigned to a ride in progress.
	DriverStatusEnRoute DriverStatus = "EN_ROUTE"
)

// Driver represents a driver available for dispatch. Region is derived
// from (Lon,Lat) via geo.Region and kept in sync on every position update,
// so the matcher can restrict its candidate scan to the ride's region.
type Driver struct {
	ID        string
	Lat       float64
	Lon       float64
	Region    int
	Status    DriverStatus
	UpdatedAt time.Time
}
