package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trip is the idempotent record of a completed ride, keyed by RideID.
type Trip struct {
	ID                       string
	RideID                   string
	DriverID                 string
	DistanceKM               float64
	Fare                     decimal.Decimal
	SimulatedDurationSeconds float64
	StartedAt                time.Time
	EndedAt                  time.Time
}
