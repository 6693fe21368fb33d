// Package postgres implements the repository interfaces against
// PostgreSQL, using lib/pq and the stdlib database/sql pool.
package postgres

import (
	"context"
	"database/sql"

	"dispatchsim/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx, so
// repositories can run the same query either against the pool or inside a
// caller-supplied transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// querierOf returns tx if non-nil, otherwise db. Several repository methods
// are called both from inside store.Gateway.RunTxn and from plain
// best-effort paths (seeding, dashboard reads) that don't need a transaction.
func querierOf(db *sql.DB, tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return db
}

// requireRowsAffected turns a zero-row UPDATE/DELETE result into
// repository.ErrNotFound, the convention every repository method here uses
// for "the row I expected to touch wasn't there."
func requireRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
