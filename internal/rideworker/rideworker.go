// Package rideworker drives a single ride through its full lifecycle:
// REQUESTED, a bounded match loop, ASSIGNED, EN_ROUTE, and COMPLETE,
// releasing its driver's busy-set entry on every exit path.
package rideworker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dispatchsim/internal/busyset"
	"dispatchsim/internal/domain"
	"dispatchsim/internal/geo"
	"dispatchsim/internal/geoindex"
	"dispatchsim/internal/matcher"
	"dispatchsim/internal/repository"
	"dispatchsim/internal/store"
)

// ErrExpired is returned when the match loop times out without a driver
// ever being assigned. The ride has already been committed as EXPIRED.
var ErrExpired = errors.New("rideworker: ride expired before a driver was matched")

const (
	maxWaitSeconds = 300

	pollSleepMinMS = 800
	pollSleepMaxMS = 1300

	simulationSpeedup = 30
	minSimDurationSec = 2.0

	baseFare  = "3.0"
	perKMFare = "1.8"
)

// Config tunes the worker's timing. Zero values fall back to the defaults
// above (300s match wait, speedup 30, 2s simulated-duration floor).
type Config struct {
	MaxWaitSeconds    time.Duration
	SimulationSpeedup float64
	MinSimDuration    time.Duration
}

// Worker runs rides to completion against a shared store, repositories,
// matcher and busy-set.
type Worker struct {
	gateway    *store.Gateway
	rideRepo   repository.RideRepository
	driverRepo repository.DriverRepository
	tripRepo   repository.TripRepository
	matcher    *matcher.Matcher
	busySet    busyset.Interface
	geoIndex   *geoindex.Index

	maxWait  time.Duration
	speedup  float64
	minSimDu time.Duration
}

// New builds a Worker. geoIndex may be nil; when set, the driver's geo
// index position is updated on release at dropoff.
func New(
	gateway *store.Gateway,
	rideRepo repository.RideRepository,
	driverRepo repository.DriverRepository,
	tripRepo repository.TripRepository,
	m *matcher.Matcher,
	busySet busyset.Interface,
	geoIndex *geoindex.Index,
	cfg Config,
) *Worker {
	maxWait := cfg.MaxWaitSeconds
	if maxWait <= 0 {
		maxWait = maxWaitSeconds * time.Second
	}
	speedup := cfg.SimulationSpeedup
	if speedup <= 0 {
		speedup = simulationSpeedup
	}
	minSimDu := cfg.MinSimDuration
	if minSimDu <= 0 {
		minSimDu = time.Duration(minSimDurationSec * float64(time.Second))
	}
	return &Worker{
		gateway:    gateway,
		rideRepo:   rideRepo,
		driverRepo: driverRepo,
		tripRepo:   tripRepo,
		matcher:    m,
		busySet:    busySet,
		geoIndex:   geoIndex,
		maxWait:    maxWait,
		speedup:    speedup,
		minSimDu:   minSimDu,
	}
}

// Run drives ride through REQUESTED -> {ASSIGNED -> EN_ROUTE -> COMPLETED}
// or REQUESTED -> EXPIRED. It blocks until the ride reaches a terminal
// state or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, ride *domain.Ride) error {
	ride.Region = geo.Region(ride.PickupLon, ride.PickupLat)

	if err := w.persistRequested(ctx, ride); err != nil {
		return fmt.Errorf("rideworker: persist requested: %w", err)
	}

	t0 := ride.RequestedAt
	driverID, err := w.matchLoop(ctx, ride, t0)
	if err != nil {
		return err
	}

	if err := w.runEnRoute(ctx, ride); err != nil {
		// complete() never runs on this path, so release here; the release
		// must still reach Redis when ctx itself was cancelled.
		_ = w.busySet.Release(context.WithoutCancel(ctx), driverID)
		return fmt.Errorf("rideworker: en route: %w", err)
	}

	if err := w.complete(ctx, ride, driverID); err != nil {
		return fmt.Errorf("rideworker: complete: %w", err)
	}

	return nil
}

func (w *Worker) persistRequested(ctx context.Context, ride *domain.Ride) error {
	_, err := w.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		return nil, w.rideRepo.UpsertRequested(ctx, tx, ride)
	})
	return err
}

// matchLoop polls the matcher until a driver is confirmed, the ride
// expires, or ctx is cancelled. It owns the busy-set release for the
// driver it acquires only until ConfirmAssigned succeeds; after that Run
// releases it, through complete() or directly when EN_ROUTE fails.
func (w *Worker) matchLoop(ctx context.Context, ride *domain.Ride, t0 time.Time) (string, error) {
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		driverID, err := w.matcher.Match(ctx, ride)
		switch {
		case err == nil:
			confirmed, err := w.confirmAssigned(ctx, ride, driverID)
			if err == nil && confirmed {
				return driverID, nil
			}
			// Either the ASSIGNED transaction failed or another worker
			// advanced this ride first: treat the driver as not acquired,
			// release it and keep polling.
			if relErr := w.busySet.Release(context.WithoutCancel(ctx), driverID); relErr != nil {
				return "", fmt.Errorf("rideworker: release %s after unconfirmed match: %w", driverID, relErr)
			}

		case errors.Is(err, matcher.ErrNoDriverAvailable):
			if incErr := w.incrementRetries(ctx, ride.ID); incErr != nil {
				return "", fmt.Errorf("rideworker: increment retries: %w", incErr)
			}
			ride.Retries++

		default:
			return "", fmt.Errorf("rideworker: match: %w", err)
		}

		if time.Since(t0) >= w.maxWait {
			expired, expErr := w.expireIfUnmatched(ctx, ride.ID)
			if expErr != nil {
				return "", fmt.Errorf("rideworker: expire: %w", expErr)
			}
			if expired {
				ride.Status = domain.RideStatusExpired
				return "", ErrExpired
			}
			// Matched in the same instant the timeout fired; loop once
			// more to pick up the ConfirmAssigned path.
			continue
		}

		sleep := time.Duration(pollSleepMinMS+rand.Intn(pollSleepMaxMS-pollSleepMinMS)) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (w *Worker) confirmAssigned(ctx context.Context, ride *domain.Ride, driverID string) (bool, error) {
	result, err := w.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		applied, err := w.rideRepo.ConfirmAssigned(ctx, tx, ride.ID, driverID)
		return applied, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (w *Worker) incrementRetries(ctx context.Context, rideID string) error {
	_, err := w.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		_, err := w.rideRepo.IncrementRetriesIfUnmatched(ctx, tx, rideID)
		return nil, err
	})
	return err
}

func (w *Worker) expireIfUnmatched(ctx context.Context, rideID string) (bool, error) {
	result, err := w.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		applied, err := w.rideRepo.ExpireIfUnmatched(ctx, tx, rideID)
		return applied, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (w *Worker) runEnRoute(ctx context.Context, ride *domain.Ride) error {
	_, err := w.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		return nil, w.rideRepo.SetEnRoute(ctx, tx, ride.ID)
	})
	if err != nil {
		return err
	}

	simulated := w.simulatedDuration(ride.RealTripDurationSeconds)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(simulated):
	}
	return nil
}

// simulatedDuration scales a seed trip's real duration down by speedup,
// floored at minSimDu.
func (w *Worker) simulatedDuration(realTripDurationSeconds float64) time.Duration {
	scaled := time.Duration(realTripDurationSeconds/w.speedup) * time.Second
	if scaled < w.minSimDu {
		return w.minSimDu
	}
	return scaled
}

// complete inserts the idempotent Trip row, marks the ride COMPLETED, and
// frees the driver at the dropoff coordinates in one RunTxn call, which
// retries it only on a serialization conflict; any other failure is
// returned. A repeated insert for the same ride keeps the first Trip row
// via ON CONFLICT.
func (w *Worker) complete(ctx context.Context, ride *domain.Ride, driverID string) error {
	defer func() {
		// Release unconditionally once the commit above has been attempted,
		// regardless of outcome — a stuck driver is worse than a
		// momentarily over-eager release.
		_ = w.busySet.Release(context.WithoutCancel(ctx), driverID)
	}()

	distanceKM := geo.Haversine(ride.PickupLon, ride.PickupLat, ride.DropoffLon, ride.DropoffLat)
	fare := calculateFare(distanceKM)
	now := time.Now()

	trip := &domain.Trip{
		ID:                       uuid.NewString(),
		RideID:                   ride.ID,
		DriverID:                 driverID,
		DistanceKM:               distanceKM,
		Fare:                     fare,
		SimulatedDurationSeconds: w.simulatedDuration(ride.RealTripDurationSeconds).Seconds(),
		StartedAt:                ride.RequestedAt,
		EndedAt:                  now,
	}

	_, err := w.gateway.RunTxn(ctx, func(tx *sql.Tx) (any, error) {
		if _, err := w.tripRepo.Insert(ctx, tx, trip); err != nil {
			return nil, err
		}
		if err := w.rideRepo.Complete(ctx, tx, ride.ID); err != nil {
			return nil, err
		}
		if err := w.driverRepo.UpdateStatusAndLocation(ctx, tx, driverID, domain.DriverStatusAvailable, ride.DropoffLat, ride.DropoffLon); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	if w.geoIndex != nil {
		_ = w.geoIndex.Update(ctx, driverID, ride.DropoffLat, ride.DropoffLon)
	}

	ride.Status = domain.RideStatusCompleted
	return nil
}

// calculateFare implements the reference linear fare model: a flat base
// plus a per-kilometre rate.
func calculateFare(distanceKM float64) decimal.Decimal {
	base, _ := decimal.NewFromString(baseFare)
	perKM, _ := decimal.NewFromString(perKMFare)
	distance := decimal.NewFromFloat(distanceKM)
	return base.Add(perKM.Mul(distance))
}
