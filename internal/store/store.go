// Package store wraps the PostgreSQL connection pool and provides the
// serializable-transaction retry harness every write path runs through.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serializationFailure is the Postgres SQLSTATE for a serializable
// transaction conflict (40001). A run_txn retry is only warranted for
// this code; anything else is a genuine failure.
const serializationFailure = "40001"

// ErrTransactionFailed wraps the last error after all retries are exhausted.
type ErrTransactionFailed struct {
	Attempts int
	Cause    error
}

func (e *ErrTransactionFailed) Error() string {
	return fmt.Sprintf("transaction failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ErrTransactionFailed) Unwrap() error { return e.Cause }

// Diagnostics accumulates retry/conflict counters across the process
// lifetime, mirrored into Prometheus so /metrics and the dashboard read-side
// agree on the same numbers.
type Diagnostics struct {
	totalRetries          int64
	successfulAfterRetry  int64
	failedAfterMaxRetries int64

	retryCounter  prometheus.Counter
	conflictByAtt *prometheus.CounterVec
}

// NewDiagnostics registers the Prometheus collectors backing a Diagnostics.
// Safe to call once per process; pass a nil registerer to use the default.
func NewDiagnostics(reg prometheus.Registerer) *Diagnostics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Diagnostics{
		retryCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_txn_retries_total",
			Help: "Total number of serializable transaction retries.",
		}),
		conflictByAtt: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_txn_conflict_attempt",
			Help: "Serialization conflicts observed, labeled by retry attempt number.",
		}, []string{"attempt"}),
	}
}

func (d *Diagnostics) recordConflict(attempt int) {
	atomic.AddInt64(&d.totalRetries, 1)
	if d.retryCounter != nil {
		d.retryCounter.Inc()
	}
	if d.conflictByAtt != nil {
		d.conflictByAtt.WithLabelValues(fmt.Sprintf("%d", attempt)).Inc()
	}
}

func (d *Diagnostics) recordSuccessAfterRetry() {
	atomic.AddInt64(&d.successfulAfterRetry, 1)
}

func (d *Diagnostics) recordFailure() {
	atomic.AddInt64(&d.failedAfterMaxRetries, 1)
}

// Snapshot is a point-in-time read of the retry counters.
type Snapshot struct {
	TotalRetries          int64
	SuccessfulAfterRetry  int64
	FailedAfterMaxRetries int64
}

// Snapshot returns a consistent read of the current counters.
func (d *Diagnostics) Snapshot() Snapshot {
	return Snapshot{
		TotalRetries:          atomic.LoadInt64(&d.totalRetries),
		SuccessfulAfterRetry:  atomic.LoadInt64(&d.successfulAfterRetry),
		FailedAfterMaxRetries: atomic.LoadInt64(&d.failedAfterMaxRetries),
	}
}

// Gateway owns the database handle and the retry policy applied to every
// write transaction.
type Gateway struct {
	db          *sql.DB
	diagnostics *Diagnostics
	maxRetries  int
}

// Option configures a RunTxn call.
type Option func(*txnOptions)

type txnOptions struct {
	maxRetries int
}

// WithMaxRetries overrides the gateway's default retry budget for a single call.
func WithMaxRetries(n int) Option {
	return func(o *txnOptions) { o.maxRetries = n }
}

// NewGateway wraps an already-opened *sql.DB. maxRetries defaults to 5 when <= 0.
func NewGateway(db *sql.DB, diagnostics *Diagnostics, maxRetries int) *Gateway {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Gateway{db: db, diagnostics: diagnostics, maxRetries: maxRetries}
}

// DB exposes the underlying pool for read-only queries that don't need the
// retry harness.
func (g *Gateway) DB() *sql.DB { return g.db }

// RunTxn executes f inside a SERIALIZABLE transaction, retrying with
// exponential backoff and jitter whenever Postgres reports a serialization
// failure (SQLSTATE 40001). f must be side-effect free outside of the
// transaction it is given, since it may run more than once.
func (g *Gateway) RunTxn(ctx context.Context, f func(*sql.Tx) (any, error), opts ...Option) (any, error) {
	cfg := txnOptions{maxRetries: g.maxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		result, err := g.runOnce(ctx, f)
		if err == nil {
			if attempt > 0 && g.diagnostics != nil {
				g.diagnostics.recordSuccessAfterRetry()
			}
			return result, nil
		}

		if !isSerializationFailure(err) {
			return nil, err
		}

		lastErr = err
		if g.diagnostics != nil {
			g.diagnostics.recordConflict(attempt)
		}

		if attempt == cfg.maxRetries {
			break
		}

		backoff := time.Duration(100*(1<<attempt))*time.Millisecond + jitter(50*time.Millisecond)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if g.diagnostics != nil {
		g.diagnostics.recordFailure()
	}
	return nil, &ErrTransactionFailed{Attempts: cfg.maxRetries + 1, Cause: lastErr}
}

func (g *Gateway) runOnce(ctx context.Context, f func(*sql.Tx) (any, error)) (result any, err error) {
	tx, err := g.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin serializable tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err = f(tx)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == serializationFailure
	}
	return false
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
