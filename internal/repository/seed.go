package repository

import (
	"context"

	"dispatchsim/internal/domain"
)

// NycCleanRepository persists and reads the staged/cleaned historical trip
// data the replay scheduler drives rides from.
type NycCleanRepository interface {
	// LoadSynthetic generates n synthetic NYC trip rows into staging, for
	// environments without a real dataset to load.
	LoadSynthetic(ctx context.Context, n int) error

	// Clean copies qualifying staging rows into the clean table, applying
	// the same distance/fare/bounding-box filters as the reference
	// pipeline, and returns the number of rows inserted.
	Clean(ctx context.Context) (int64, error)

	// CountClean returns the number of rows available to replay.
	CountClean(ctx context.Context) (int, error)

	// ListClean returns up to limit clean rows ordered by pickup_datetime,
	// starting after offset, for the replay scheduler to page through.
	ListClean(ctx context.Context, limit, offset int) ([]domain.HistoricalRide, error)

	// TruncateAll empties staging, clean, drivers, rides and trips. Used by
	// the CLI's "clean" subcommand before a fresh replay run.
	TruncateAll(ctx context.Context) error
}
