// Package cache provides a short-TTL Redis cache for pending-change counts,
// keeping the status endpoint from hammering the ledger tables on every
// client poll.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	countsKeyPrefix = "pendcnt:"
	countsTTL       = 30 * time.Second
)

// PendingCounts is the cached value for one (user, data type).
type PendingCounts struct {
	Changes int64 `json:"changes"`
	Deletes int64 `json:"deletes"`
}

// RedisCountsCache caches pending counts with automatic TTL expiry.
type RedisCountsCache struct {
	client *redis.Client
}

func NewRedisCountsCache(client *redis.Client) *RedisCountsCache {
	return &RedisCountsCache{client: client}
}

// Get returns the cached counts, or (nil, nil) on a miss.
func (c *RedisCountsCache) Get(ctx context.Context, userID, dataType string) (*PendingCounts, error) {
	data, err := c.client.Get(ctx, countsKey(userID, dataType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending counts: %w", err)
	}

	var counts PendingCounts
	if err := json.Unmarshal([]byte(data), &counts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending counts: %w", err)
	}
	return &counts, nil
}

// Set stores the counts with the cache TTL.
func (c *RedisCountsCache) Set(ctx context.Context, userID, dataType string, counts PendingCounts) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal pending counts: %w", err)
	}
	if err := c.client.Set(ctx, countsKey(userID, dataType), data, countsTTL).Err(); err != nil {
		return fmt.Errorf("failed to set pending counts: %w", err)
	}
	return nil
}

// Invalidate drops the cached counts after an ingest commits new rows.
func (c *RedisCountsCache) Invalidate(ctx context.Context, userID, dataType string) error {
	if err := c.client.Del(ctx, countsKey(userID, dataType)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate pending counts: %w", err)
	}
	return nil
}

func countsKey(userID, dataType string) string {
	return countsKeyPrefix + userID + ":" + dataType
}
