// Package busyset implements the cheap, non-authoritative pre-filter used
// ahead of the matcher's row-lock re-check: a Redis set mirroring which
// drivers are currently held by some in-flight match or trip. It has no
// per-key TTL; staleness is bounded instead by a periodic ResetTo sweep
// run by the replay scheduler.
package busyset

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix = "busyset:lock:"
	membersKey = "busyset:members"
)

// Interface is the busy-set contract consumed by the matcher and
// ride-worker, so tests can substitute an in-memory fake.
type Interface interface {
	TryAcquire(ctx context.Context, driverID string) (bool, error)
	Release(ctx context.Context, driverID string) error
	Members(ctx context.Context) ([]string, error)
	IsBusy(ctx context.Context, driverID string) (bool, error)
	ResetTo(ctx context.Context, driverIDs []string) error
}

// Set is a Redis-backed busy-driver cache.
type Set struct {
	client *redis.Client
}

var _ Interface = (*Set)(nil)

// New wraps an existing Redis client.
func New(client *redis.Client) *Set {
	return &Set{client: client}
}

// TryAcquire marks driverID busy if it isn't already. Returns false without
// error if another caller holds it. This is the cheap first level of the
// matcher's two-level mutual exclusion; the authoritative check still
// happens under the row lock inside the assignment transaction.
func (s *Set) TryAcquire(ctx context.Context, driverID string) (bool, error) {
	key := lockPrefix + driverID
	ok, err := s.client.SetNX(ctx, key, "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("busyset: acquire %s: %w", driverID, err)
	}
	if ok {
		if err := s.client.SAdd(ctx, membersKey, driverID).Err(); err != nil {
			return false, fmt.Errorf("busyset: mirror %s: %w", driverID, err)
		}
	}
	return ok, nil
}

// Release frees driverID. Always safe to call, including when the driver
// was never acquired by this process — matcher and ride-worker call it
// unconditionally on every exit path.
func (s *Set) Release(ctx context.Context, driverID string) error {
	key := lockPrefix + driverID
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, membersKey, driverID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("busyset: release %s: %w", driverID, err)
	}
	return nil
}

// Members returns the current busy-driver snapshot.
func (s *Set) Members(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, membersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("busyset: members: %w", err)
	}
	return ids, nil
}

// IsBusy checks a single driver against the mirror set.
func (s *Set) IsBusy(ctx context.Context, driverID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, membersKey, driverID).Result()
	if err != nil {
		return false, fmt.Errorf("busyset: is-busy %s: %w", driverID, err)
	}
	return ok, nil
}

// ResetTo replaces the busy-set contents with exactly driverIDs. The replay
// scheduler runs this when Replay starts and then on a tick to reconcile
// drift between the cache and
// the store's authoritative driver status, since entries carry no TTL of
// their own.
func (s *Set) ResetTo(ctx context.Context, driverIDs []string) error {
	old, err := s.Members(ctx)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, id := range old {
		pipe.Del(ctx, lockPrefix+id)
	}
	pipe.Del(ctx, membersKey)
	for _, id := range driverIDs {
		pipe.Set(ctx, lockPrefix+id, "1", 0)
		pipe.SAdd(ctx, membersKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("busyset: reset: %w", err)
	}
	return nil
}
