package domain

import "time"

// HistoricalRide is one row of a cleaned historical trip, replayed as a
// ride request. It is the read-side of nyc_clean; RideID is stable across
// re-runs so a replay can resume without re-seeding.
type HistoricalRide struct {
	RideID          string
	PickupDatetime  time.Time
	DropoffDatetime time.Time
	PickupLat       float64
	PickupLon       float64
	DropoffLat      float64
	DropoffLon      float64
	TripDistanceMi  float64
	TotalAmount     float64
}
