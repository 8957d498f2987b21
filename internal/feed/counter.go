package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CounterCell stores the denormalized unseen count for one user. An absent
// cell reads as 0.
type CounterCell interface {
	Get(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, count int) error
}

// RedisCounterCell keeps the count in a plain redis string key.
type RedisCounterCell struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisCounterCell(client *redis.Client, logger zerolog.Logger) *RedisCounterCell {
	return &RedisCounterCell{client: client, log: logger}
}

func (c *RedisCounterCell) Get(ctx context.Context, key string) (int, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read count cell: %w", err)
	}

	count, ok := parseCount(raw)
	if !ok {
		// A corrupt cell must not take reads down; the next mutation rewrites it.
		c.log.Warn().Str("key", key).Str("value", raw).Msg("malformed count cell, defaulting to 0")
		return 0, nil
	}
	return count, nil
}

func (c *RedisCounterCell) Set(ctx context.Context, key string, count int) error {
	if err := c.client.Set(ctx, key, count, 0).Err(); err != nil {
		return fmt.Errorf("failed to write count cell: %w", err)
	}
	return nil
}

func parseCount(raw string) (int, bool) {
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}
