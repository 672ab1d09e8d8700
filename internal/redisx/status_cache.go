package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache keeps the last known status of an order for cheap polling.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

type CachedStatus struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *StatusCache) Set(ctx context.Context, orderID, status string, at time.Time) error {
	b, err := json.Marshal(CachedStatus{Status: status, UpdatedAt: at})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, c.ttl).Err()
}

// Fill stores status only when no entry exists, so a read-through fill never
// overwrites a newer status written by a committed transition.
func (c *StatusCache) Fill(ctx context.Context, orderID, status string, at time.Time) error {
	b, err := json.Marshal(CachedStatus{Status: status, UpdatedAt: at})
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, c.ttl).Err()
}

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var cs CachedStatus
	if err := json.Unmarshal(b, &cs); err != nil {
		return CachedStatus{}, false, err
	}
	return cs, true, nil
}

// Dedup marks an event id as processed for a service.
type Dedup struct {
	rdb     redis.Cmdable
	service string
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// Claim returns true the first time id is seen within TTLDedup.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, id), 1, TTLDedup).Result()
}

// Release forgets a claim so the event can be retried.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, id)).Err()
}
