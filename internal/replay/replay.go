// Package replay drives historical trips from nyc_clean through the
// dispatch engine: a rate-limited, bounded-concurrency fan-out over
// rideworker.Worker, plus a periodic busy-set reconciliation sweep that
// bounds drift from crashed or killed workers.
package replay

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"dispatchsim/internal/busyset"
	"dispatchsim/internal/domain"
	"dispatchsim/internal/repository"
	"dispatchsim/internal/rideworker"
)

const (
	defaultMaxConcurrency    = 200
	defaultRatePerSecond     = 50
	defaultReconcileInterval = 60 * time.Second
)

// Config tunes the scheduler's concurrency, pacing and reconciliation
// cadence. Zero values fall back to the defaults above.
type Config struct {
	MaxConcurrency    int
	RatePerSecond     float64
	ReconcileInterval time.Duration
}

// Summary reports the outcome of a Replay call.
type Summary struct {
	Completed int
	Expired   int
	Failed    int
}

// Scheduler fans seed rows out onto rideworker.Worker instances, bounded
// by MaxConcurrency and paced by a token-bucket rate limiter.
type Scheduler struct {
	seedRepo   repository.NycCleanRepository
	driverRepo repository.DriverRepository
	busySet    busyset.Interface
	worker     *rideworker.Worker

	limiter           *rate.Limiter
	maxConcurrency    int
	reconcileInterval time.Duration
}

// New builds a Scheduler.
func New(
	seedRepo repository.NycCleanRepository,
	driverRepo repository.DriverRepository,
	busySet busyset.Interface,
	worker *rideworker.Worker,
	cfg Config,
) *Scheduler {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}
	reconcileInterval := cfg.ReconcileInterval
	if reconcileInterval <= 0 {
		reconcileInterval = defaultReconcileInterval
	}
	return &Scheduler{
		seedRepo:          seedRepo,
		driverRepo:        driverRepo,
		busySet:           busySet,
		worker:            worker,
		limiter:           rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)),
		maxConcurrency:    maxConcurrency,
		reconcileInterval: reconcileInterval,
	}
}

// Replay reads up to limit seed rows from nyc_clean and drives each one
// through a rideworker.Worker. Cancelling ctx drains in-flight workers at
// their next suspension point; each still releases its busy-set entry
// before returning, per spec.md's cancellation contract.
func (s *Scheduler) Replay(ctx context.Context, limit int) (Summary, error) {
	rows, err := s.seedRepo.ListClean(ctx, limit, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("replay: list clean rows: %w", err)
	}

	// Reconcile once before any worker starts, discarding entries left by
	// an earlier crashed process; the ticker keeps it in step afterwards.
	if err := s.reconcileOnce(ctx); err != nil {
		log.Printf("replay: startup busy-set reconciliation failed: %v", err)
	}

	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	defer stopReconcile()
	go s.reconcileLoop(reconcileCtx)

	var completed, expired, failed int64

	group, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.maxConcurrency)

	for _, row := range rows {
		row := row

		if err := s.limiter.Wait(groupCtx); err != nil {
			break
		}

		sem <- struct{}{}

		group.Go(func() error {
			defer func() { <-sem }()

			ride := newRideFromHistorical(row)
			runErr := s.worker.Run(groupCtx, ride)
			switch {
			case runErr == nil:
				atomic.AddInt64(&completed, 1)
			case runErr == rideworker.ErrExpired:
				atomic.AddInt64(&expired, 1)
			default:
				atomic.AddInt64(&failed, 1)
				log.Printf("replay: ride %s failed: %v", ride.ID, runErr)
			}
			// A single ride's failure never aborts the rest of the replay
			// batch — only a cancelled context does.
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Summary{}, fmt.Errorf("replay: worker group: %w", err)
	}

	return Summary{
		Completed: int(atomic.LoadInt64(&completed)),
		Expired:   int(atomic.LoadInt64(&expired)),
		Failed:    int(atomic.LoadInt64(&failed)),
	}, nil
}

// reconcileLoop periodically replaces the busy-set contents with the IDs
// of drivers that are actually MATCHING or EN_ROUTE, bounding the leak
// window from a crashed worker since busy-set entries carry no TTL.
func (s *Scheduler) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reconcileOnce(ctx); err != nil {
				log.Printf("replay: busy-set reconciliation failed: %v", err)
			}
		}
	}
}

func (s *Scheduler) reconcileOnce(ctx context.Context) error {
	drivers, err := s.driverRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}

	busy := make([]string, 0, len(drivers))
	for _, d := range drivers {
		if d.Status != domain.DriverStatusAvailable {
			busy = append(busy, d.ID)
		}
	}

	if err := s.busySet.ResetTo(ctx, busy); err != nil {
		return fmt.Errorf("reset busy-set: %w", err)
	}
	return nil
}

func newRideFromHistorical(row domain.HistoricalRide) *domain.Ride {
	return &domain.Ride{
		ID:                      row.RideID,
		PickupLat:               row.PickupLat,
		PickupLon:               row.PickupLon,
		DropoffLat:              row.DropoffLat,
		DropoffLon:              row.DropoffLon,
		PickupDatetime:          row.PickupDatetime,
		RealTripDurationSeconds: row.DropoffDatetime.Sub(row.PickupDatetime).Seconds(),
		Status:                  domain.RideStatusRequested,
		RequestedAt:             time.Now(),
	}
}
