// Package geoindex maintains a Redis GEO index of driver positions,
// adapted from the teacher's internal/redis/location.go. It is an
// optional narrowing filter ahead of the matcher's authoritative Postgres
// candidate scan — never the source of truth for a driver's position.
package geoindex

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const driverPositionsKey = "drivers:positions"

// Index is a Redis-backed geospatial index of driver positions.
type Index struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Index {
	return &Index{client: client}
}

// Update records driverID's current position.
func (idx *Index) Update(ctx context.Context, driverID string, lat, lon float64) error {
	err := idx.client.GeoAdd(ctx, driverPositionsKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lon,
		Latitude:  lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoindex: update %s: %w", driverID, err)
	}
	return nil
}

// Remove drops driverID from the index, e.g. when it's deleted entirely.
func (idx *Index) Remove(ctx context.Context, driverID string) error {
	if err := idx.client.ZRem(ctx, driverPositionsKey, driverID).Err(); err != nil {
		return fmt.Errorf("geoindex: remove %s: %w", driverID, err)
	}
	return nil
}

// Nearby returns driver IDs within radiusKm of (lat, lon), nearest first.
func (idx *Index) Nearby(ctx context.Context, lat, lon, radiusKm float64) ([]string, error) {
	results, err := idx.client.GeoSearch(ctx, driverPositionsKey, &redis.GeoSearchQuery{
		Longitude:  lon,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geoindex: nearby search: %w", err)
	}
	return results, nil
}
