// Package metrics implements the dispatch dashboard's read-side: a
// stateless snapshot aggregator, a Redis-backed delta-throughput sampler,
// and a websocket hub that pushes snapshots to connected clients.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"dispatchsim/internal/domain"
	"dispatchsim/internal/repository"
)

// Snapshot is a point-in-time read of the dispatch engine's state, the
// JSON body served at GET /api/metrics.
type Snapshot struct {
	RidesByStatus    map[domain.RideStatus]int    `json:"rides_by_status"`
	DriversByStatus  map[domain.DriverStatus]int  `json:"drivers_by_status"`
	CompletedTrips   int                           `json:"completed_trips"`
	AvgMatchLatency  float64                       `json:"avg_match_latency_ms"`
	HasMatchLatency  bool                          `json:"has_match_latency"`
	RidesPerMinute   float64                       `json:"rides_per_minute"`
	ConsistencyDelay *float64                      `json:"consistency_delay_ms,omitempty"`
}

// Aggregator computes stateless Snapshot reads directly from the store.
type Aggregator struct {
	rideRepo   repository.RideRepository
	driverRepo repository.DriverRepository
	tripRepo   repository.TripRepository
}

// NewAggregator builds an Aggregator.
func NewAggregator(rideRepo repository.RideRepository, driverRepo repository.DriverRepository, tripRepo repository.TripRepository) *Aggregator {
	return &Aggregator{rideRepo: rideRepo, driverRepo: driverRepo, tripRepo: tripRepo}
}

// Snapshot assembles ride/driver/trip counts in one read, leaving
// RidesPerMinute and ConsistencyDelay for the caller to fill in from
// Throughput.Sample and ConsistencyDelayMS respectively.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	ridesByStatus, err := a.rideRepo.CountByStatus(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("metrics: count rides by status: %w", err)
	}

	drivers, err := a.driverRepo.ListAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("metrics: list drivers: %w", err)
	}
	driversByStatus := make(map[domain.DriverStatus]int)
	for _, d := range drivers {
		driversByStatus[d.Status]++
	}

	completedTrips, err := a.tripRepo.Count(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("metrics: count trips: %w", err)
	}

	avgLatency, hasLatency, err := a.rideRepo.AverageMatchLatencyMS(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("metrics: average match latency: %w", err)
	}

	return Snapshot{
		RidesByStatus:   ridesByStatus,
		DriversByStatus: driversByStatus,
		CompletedTrips:  completedTrips,
		AvgMatchLatency: avgLatency,
		HasMatchLatency: hasLatency,
	}, nil
}

const (
	throughputCountKey    = "metrics:completed_count"
	throughputSampledAtKey = "metrics:sampled_at"
)

// Throughput computes a delta-based rides-per-minute figure, with its
// baseline persisted in Redis so the rate survives process restarts.
type Throughput struct {
	client   *redis.Client
	tripRepo repository.TripRepository
}

// NewThroughput builds a Throughput sampler.
func NewThroughput(client *redis.Client, tripRepo repository.TripRepository) *Throughput {
	return &Throughput{client: client, tripRepo: tripRepo}
}

// Sample computes rides completed per minute since the last Sample call.
// The baseline resets (rather than going negative) if completedNow is
// smaller than the stored baseline, which happens after a truncate/reset
// of the trips table; it only advances the reported rate when the delta
// is positive.
func (t *Throughput) Sample(ctx context.Context) (float64, error) {
	completedNow, err := t.tripRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("metrics: count trips: %w", err)
	}

	now := time.Now()

	lastCountStr, lastErr := t.client.Get(ctx, throughputCountKey).Result()
	lastSampledAtStr, sampledErr := t.client.Get(ctx, throughputSampledAtKey).Result()

	if lastErr == redis.Nil || sampledErr == redis.Nil {
		// No baseline yet; bootstrap one and report nothing this round.
		return 0, t.writeBaseline(ctx, completedNow, now)
	}
	if lastErr != nil {
		return 0, fmt.Errorf("metrics: read throughput baseline: %w", lastErr)
	}
	if sampledErr != nil {
		return 0, fmt.Errorf("metrics: read throughput timestamp: %w", sampledErr)
	}

	var lastCount int
	if _, err := fmt.Sscanf(lastCountStr, "%d", &lastCount); err != nil {
		return 0, t.writeBaseline(ctx, completedNow, now)
	}
	lastSampledAt, err := time.Parse(time.RFC3339Nano, lastSampledAtStr)
	if err != nil {
		return 0, t.writeBaseline(ctx, completedNow, now)
	}

	if completedNow < lastCount {
		// Table was truncated/reset since the last sample; restart the
		// baseline rather than reporting a negative rate.
		return 0, t.writeBaseline(ctx, completedNow, now)
	}

	elapsedMinutes := now.Sub(lastSampledAt).Minutes()
	delta := completedNow - lastCount
	if elapsedMinutes <= 0 || delta <= 0 {
		// Quiescent sample: leave the baseline in place so the next
		// non-empty interval still measures from the last real advance.
		return 0, nil
	}

	if err := t.writeBaseline(ctx, completedNow, now); err != nil {
		return 0, err
	}
	return float64(delta) / elapsedMinutes, nil
}

// writeBaseline persists the count/timestamp pair Sample measures deltas
// against on its next call.
func (t *Throughput) writeBaseline(ctx context.Context, count int, at time.Time) error {
	pipe := t.client.TxPipeline()
	pipe.Set(ctx, throughputCountKey, count, 0)
	pipe.Set(ctx, throughputSampledAtKey, at.Format(time.RFC3339Nano), 0)
	_, err := pipe.Exec(ctx)
	return err
}

// ConsistencyDelayMS is a best-effort per-node commit-latency figure. No
// pack dependency exposes cluster-replication introspection, so this
// always reports unavailable — spec.md explicitly allows that outcome.
func ConsistencyDelayMS(ctx context.Context) (float64, bool) {
	return 0, false
}

// Gauges mirrors a Snapshot's headline numbers into Prometheus for
// /metrics, alongside the JSON endpoints the dashboard polls directly.
type Gauges struct {
	ridesPerMinute  prometheus.Gauge
	driverByStatus  *prometheus.GaugeVec
	completedTrips  prometheus.Gauge
}

// NewGauges registers the Prometheus collectors backing a Gauges. Safe to
// call once per process; pass a nil registerer to use the default.
func NewGauges(reg prometheus.Registerer) *Gauges {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Gauges{
		ridesPerMinute: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_rides_per_minute",
			Help: "Completed rides per minute, computed as a delta over the last sample interval.",
		}),
		driverByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_drivers_by_status",
			Help: "Current driver count, labeled by status.",
		}, []string{"status"}),
		completedTrips: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_completed_trips_total",
			Help: "Total number of completed trips.",
		}),
	}
}

// Observe mirrors a Snapshot and a throughput sample into the registered gauges.
func (g *Gauges) Observe(snap Snapshot, ridesPerMinute float64) {
	g.ridesPerMinute.Set(ridesPerMinute)
	g.completedTrips.Set(float64(snap.CompletedTrips))
	for status, n := range snap.DriversByStatus {
		g.driverByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
