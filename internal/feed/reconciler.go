package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SetClient is the slice of redis commands the reconciler needs for the
// pending set. *redis.Client satisfies it.
type SetClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// Reconciler re-derives denormalized counts for users flagged before a
// mutation. It repairs counters left behind by a process that died between
// the store write and the counter write.
type Reconciler struct {
	client   SetClient
	feed     *NotificationFeed
	interval time.Duration
	log      zerolog.Logger
}

func NewReconciler(client SetClient, feed *NotificationFeed, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		client:   client,
		feed:     feed,
		interval: interval,
		log:      logger.With().Str("component", "feed_reconciler").Logger(),
	}
}

// MarkPending flags a user for the next reconciliation pass. Best effort:
// a failed flag only delays the repair until the user's next mutation.
func (r *Reconciler) MarkPending(ctx context.Context, userID uuid.UUID) {
	if err := r.client.SAdd(ctx, pendingReconcileKey, userID.String()).Err(); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to flag user for reconciliation")
	}
}

// Run processes the pending set on a fixed interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reconcile(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	userIDs, err := r.client.SMembers(ctx, pendingReconcileKey).Result()
	if err != nil {
		r.log.Error().Err(err).Msg("failed to read pending reconciliation set")
		return
	}
	if len(userIDs) == 0 {
		return
	}

	// Only members of this snapshot are removed afterwards. Users flagged
	// while the pass runs stay in the set for the next tick, and a failed
	// refresh keeps its user flagged for a retry.
	processed := make([]interface{}, 0, len(userIDs))
	for _, raw := range userIDs {
		userID, err := uuid.Parse(raw)
		if err != nil {
			r.log.Warn().Str("user_id", raw).Msg("invalid user id in pending set")
			processed = append(processed, raw)
			continue
		}
		if _, err := r.feed.RefreshCount(ctx, userID); err != nil {
			r.log.Warn().Err(err).Str("user_id", raw).Msg("failed to refresh count")
			continue
		}
		processed = append(processed, raw)
	}
	if len(processed) == 0 {
		return
	}

	if err := r.client.SRem(ctx, pendingReconcileKey, processed...).Err(); err != nil {
		r.log.Warn().Err(err).Msg("failed to clear reconciled users from pending set")
	}

	r.log.Debug().Int("users", len(processed)).Msg("reconciled denormalized counts")
}
