package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers best-effort live count updates. No delivery guarantee;
// subscribers treat messages as a hint to refresh, not as the source of truth.
type Publisher interface {
	Publish(ctx context.Context, channel string, count int) error
}

// RedisPublisher broadcasts counts over redis pubsub.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, count int) error {
	if err := p.client.Publish(ctx, channel, count).Err(); err != nil {
		return fmt.Errorf("failed to publish count update: %w", err)
	}
	return nil
}
