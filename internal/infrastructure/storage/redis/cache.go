package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// Cache keeps the latest snapshot per market in one hash key. Advisory only:
// the sqlite/postgres store remains the system of record.
type Cache struct {
	rdb *redis.Client
	key string // prefix + ":markets:latest"
	ttl time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "yieldopt"
	}
	return &Cache{
		rdb: rdb,
		key: prefix + ":markets:latest",
		ttl: ttl,
	}
}

func (c *Cache) SetLatest(ctx context.Context, snaps []model.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for _, s := range snaps {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, c.key, s.MarketKey, string(b))
	}
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) Latest(ctx context.Context, marketKey string) (*model.MarketSnapshot, error) {
	raw, err := c.rdb.HGet(ctx, c.key, marketKey).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: no cached snapshot for %s", domain.ErrNoHistory, marketKey)
	}
	if err != nil {
		return nil, err
	}
	var snap model.MarketSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

var _ port.SnapshotCache = (*Cache)(nil)
