package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ScoredEntry pairs a serialized group with its rank score.
type ScoredEntry struct {
	Value string
	Score float64
}

// BatchWriter collects store mutations to be flushed as one round trip.
// Operations run in the order they were added.
type BatchWriter interface {
	InsertMany(key string, entries []ScoredEntry)
	RemoveMany(key string, values []string)
}

// ScoreOrderedStore is a keyed, score-ordered collection. Range reads return
// values in descending score order; equal scores fall back to the store's
// stable value ordering. Batch groups multiple mutations into a single
// pipelined round trip. Pipelining bounds the partial-visibility window but
// provides no cross-command atomicity.
type ScoreOrderedStore interface {
	// Range returns values between the inclusive rank bounds, highest score
	// first. stop of -1 reads to the end.
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Batch(ctx context.Context, fn func(b BatchWriter)) error
}

// RedisSortedSetStore backs the feed with a redis sorted set per user.
type RedisSortedSetStore struct {
	client *redis.Client
}

func NewRedisSortedSetStore(client *redis.Client) *RedisSortedSetStore {
	return &RedisSortedSetStore{client: client}
}

func (s *RedisSortedSetStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := s.client.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feed range: %w", err)
	}
	return values, nil
}

func (s *RedisSortedSetStore) Batch(ctx context.Context, fn func(b BatchWriter)) error {
	batch := &redisBatch{}
	fn(batch)
	if len(batch.ops) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range batch.ops {
			op(ctx, pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to flush feed batch: %w", err)
	}
	return nil
}

type redisBatch struct {
	ops []func(ctx context.Context, pipe redis.Pipeliner)
}

func (b *redisBatch) InsertMany(key string, entries []ScoredEntry) {
	if len(entries) == 0 {
		return
	}
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: e.Score, Member: e.Value})
	}
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, key, members...)
	})
}

func (b *redisBatch) RemoveMany(key string, values []string) {
	if len(values) == 0 {
		return
	}
	members := make([]interface{}, 0, len(values))
	for _, v := range values {
		members = append(members, v)
	}
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.ZRem(ctx, key, members...)
	})
}
