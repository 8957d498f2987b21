package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a mutation lock could not be acquired
// within the wait bound. No mutation has been performed; safe to retry.
var ErrLockTimeout = errors.New("feed lock acquisition timed out")

// DefaultLockHold caps how long a mutation may hold the per-user lock before
// the key expires and other writers proceed.
const DefaultLockHold = 2 * time.Second

const lockRetryInterval = 50 * time.Millisecond

// Locker provides per-key mutual exclusion with a bounded hold. The returned
// release func must run on every exit path of the guarded block.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLock implements the lock as a SetNX key with a TTL. The TTL is the
// safety net: a crashed holder never blocks a user key for longer than the
// hold duration.
type RedisLock struct {
	client *redis.Client
	hold   time.Duration
	wait   time.Duration
}

func NewRedisLock(client *redis.Client, hold time.Duration) *RedisLock {
	if hold <= 0 {
		hold = DefaultLockHold
	}
	return &RedisLock{
		client: client,
		hold:   hold,
		wait:   2 * hold,
	}
}

// Only the holder's token may delete the key; a lock that expired and was
// re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.hold).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire feed lock: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	release := func() {
		// Fresh context: release must run even when the caller's ctx is gone.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		// On failure the TTL reclaims the key.
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
