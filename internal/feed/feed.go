package feed

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anoa.com/notifeed/internal/model"
)

// DefaultMaxLength bounds the live window of the feed. Entries ranked below
// it may persist in the store but never affect the denormalized count.
const DefaultMaxLength = 99

// ErrNoActivities is returned when AddMany is called with an empty batch.
var ErrNoActivities = errors.New("no activities to add")

// NotificationFeed keeps three views of one logical state in agreement under
// concurrent mutation: the score-ordered entry collection, the denormalized
// unseen count, and the live update channel. Mutations are serialized per
// user by the locker; reads bypass the lock and may observe a state
// mid-mutation by another caller.
type NotificationFeed struct {
	store      ScoreOrderedStore
	counter    CounterCell
	locker     Locker
	aggregator Aggregator
	serializer Serializer
	publisher  Publisher     // nil when live updates are not configured
	pending    PendingMarker // nil when no reconciler is running
	maxLength  int
	log        zerolog.Logger
}

func NewNotificationFeed(
	store ScoreOrderedStore,
	counter CounterCell,
	locker Locker,
	aggregator Aggregator,
	serializer Serializer,
	publisher Publisher,
	logger zerolog.Logger,
) *NotificationFeed {
	return &NotificationFeed{
		store:      store,
		counter:    counter,
		locker:     locker,
		aggregator: aggregator,
		serializer: serializer,
		publisher:  publisher,
		maxLength:  DefaultMaxLength,
		log:        logger.With().Str("component", "notification_feed").Logger(),
	}
}

// PendingMarker flags a user for a background count re-derive. The feed
// flags before it writes, so a mutation that dies between the store write
// and the counter write leaves a repair marker behind.
type PendingMarker interface {
	MarkPending(ctx context.Context, userID uuid.UUID)
}

// SetPendingMarker wires the background reconciler in. Called once during
// startup, before the feed serves requests.
func (f *NotificationFeed) SetPendingMarker(m PendingMarker) {
	f.pending = m
}

func (f *NotificationFeed) markPending(ctx context.Context, userID uuid.UUID) {
	if f.pending != nil {
		f.pending.MarkPending(ctx, userID)
	}
}

// changeRecord pairs the prior serialized form of a group with its
// replacement. The store has no in-place update: a change is always a
// delete of the exact old value plus an insert of the new one.
type changeRecord struct {
	prior string
	next  ScoredEntry
}

// AddMany folds raw activities into the user's feed, swaps the changed
// groups in the store as one pipelined batch, and denormalizes the unseen
// count. Returns the full post-merge collection. Concurrent AddMany calls
// for the same user are serialized by the lock.
func (f *NotificationFeed) AddMany(ctx context.Context, userID uuid.UUID, activities []model.Activity) ([]model.AggregatedActivity, error) {
	if len(activities) == 0 {
		return nil, ErrNoActivities
	}

	release, err := f.locker.Acquire(ctx, LockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	// Flagged before any write: if this call dies mid-mutation, the
	// reconciler will still find the user and re-derive the count.
	f.markPending(ctx, userID)

	existing, priorForms, err := f.readEntries(ctx, userID, -1)
	if err != nil {
		return nil, err
	}

	merged := f.aggregator.Merge(existing, activities)

	changes := make([]changeRecord, 0, len(merged))
	for _, grp := range merged {
		value, err := f.serializer.Encode(grp)
		if err != nil {
			return nil, err
		}
		prior, existed := priorForms[grp.Group]
		if existed && prior == value {
			continue
		}
		change := changeRecord{next: ScoredEntry{Value: value, Score: f.serializer.Rank(grp)}}
		if existed {
			change.prior = prior
		}
		changes = append(changes, change)
	}

	if err := f.applyChanges(ctx, userID, changes); err != nil {
		return nil, err
	}

	if _, err := f.DenormalizeCount(ctx, userID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// MarkAll marks the live window of the feed as seen and/or read. Entries
// whose state did not change are excluded from the store swap, but the count
// is always recomputed and republished so subscribers stay synced.
func (f *NotificationFeed) MarkAll(ctx context.Context, userID uuid.UUID, seen, read bool) ([]model.AggregatedActivity, error) {
	release, err := f.locker.Acquire(ctx, LockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	f.markPending(ctx, userID)

	raws, err := f.store.Range(ctx, EntriesKey(userID), 0, int64(f.maxLength-1))
	if err != nil {
		return nil, err
	}

	entries := make([]model.AggregatedActivity, len(raws))
	for i, raw := range raws {
		entries[i], err = f.serializer.Decode(raw)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	var changes []changeRecord
	for i := range entries {
		entry := &entries[i]
		changed := false
		if seen && !entry.IsSeen() {
			seenAt := now
			entry.SeenAt = &seenAt
			changed = true
		}
		if read && !entry.IsRead() {
			readAt := now
			entry.ReadAt = &readAt
			changed = true
		}
		if !changed {
			continue
		}

		value, err := f.serializer.Encode(*entry)
		if err != nil {
			return nil, err
		}
		changes = append(changes, changeRecord{
			prior: raws[i],
			next:  ScoredEntry{Value: value, Score: f.serializer.Rank(*entry)},
		})
	}

	if err := f.applyChanges(ctx, userID, changes); err != nil {
		return nil, err
	}

	if _, err := f.DenormalizeCount(ctx, userID, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// applyChanges removes all prior forms and inserts all new forms as one
// pipelined round trip. No store call is issued for an empty change set.
func (f *NotificationFeed) applyChanges(ctx context.Context, userID uuid.UUID, changes []changeRecord) error {
	if len(changes) == 0 {
		return nil
	}

	key := EntriesKey(userID)
	toRemove := make([]string, 0, len(changes))
	toInsert := make([]ScoredEntry, 0, len(changes))
	for _, change := range changes {
		if change.prior != "" {
			toRemove = append(toRemove, change.prior)
		}
		toInsert = append(toInsert, change.next)
	}

	return f.store.Batch(ctx, func(b BatchWriter) {
		b.RemoveMany(key, toRemove)
		b.InsertMany(key, toInsert)
	})
}

// DenormalizeCount recomputes the unseen count over the top entries, writes
// it to the count cell, and then publishes it to the live channel when one
// is configured. Publish failure never rolls back the counter write; the
// channel is a hint, not the source of truth.
func (f *NotificationFeed) DenormalizeCount(ctx context.Context, userID uuid.UUID, entries []model.AggregatedActivity) (int, error) {
	count := countUnseen(topByRecency(entries, f.maxLength))

	if err := f.counter.Set(ctx, CountKey(userID), count); err != nil {
		return 0, err
	}

	if f.publisher != nil {
		if err := f.publisher.Publish(ctx, PubSubKey(userID), count); err != nil {
			f.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to publish count update")
		}
	}

	f.log.Debug().Str("user_id", userID.String()).Int("count", count).Msg("denormalized unseen count")
	return count, nil
}

// UnseenCount is the unlocked read of the denormalized cell. It may be
// transiently stale relative to an in-flight mutation by another caller.
func (f *NotificationFeed) UnseenCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return f.counter.Get(ctx, CountKey(userID))
}

// CountUnseen counts unseen groups in entries, reading the live window from
// the store when entries is nil. Diagnostic read; no lock.
func (f *NotificationFeed) CountUnseen(ctx context.Context, userID uuid.UUID, entries []model.AggregatedActivity) (int, error) {
	if entries == nil {
		var err error
		entries, _, err = f.readEntries(ctx, userID, int64(f.maxLength-1))
		if err != nil {
			return 0, err
		}
	}
	return countUnseen(topByRecency(entries, f.maxLength)), nil
}

// Entries returns the decoded live window of the feed.
func (f *NotificationFeed) Entries(ctx context.Context, userID uuid.UUID) ([]model.AggregatedActivity, error) {
	entries, _, err := f.readEntries(ctx, userID, int64(f.maxLength-1))
	return entries, err
}

// RefreshCount re-derives the count from the stored entries under the lock.
// Used by the background reconciler.
func (f *NotificationFeed) RefreshCount(ctx context.Context, userID uuid.UUID) (int, error) {
	release, err := f.locker.Acquire(ctx, LockKey(userID))
	if err != nil {
		return 0, err
	}
	defer release()

	entries, _, err := f.readEntries(ctx, userID, int64(f.maxLength-1))
	if err != nil {
		return 0, err
	}
	return f.DenormalizeCount(ctx, userID, entries)
}

// readEntries reads and decodes entries from rank 0 through stop, returning
// the groups plus a map from group key to raw stored value, used for
// value-identity swaps.
func (f *NotificationFeed) readEntries(ctx context.Context, userID uuid.UUID, stop int64) ([]model.AggregatedActivity, map[string]string, error) {
	raws, err := f.store.Range(ctx, EntriesKey(userID), 0, stop)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]model.AggregatedActivity, 0, len(raws))
	priorForms := make(map[string]string, len(raws))
	for _, raw := range raws {
		entry, err := f.serializer.Decode(raw)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)
		priorForms[entry.Group] = raw
	}
	return entries, priorForms, nil
}

func topByRecency(entries []model.AggregatedActivity, maxLength int) []model.AggregatedActivity {
	top := make([]model.AggregatedActivity, len(entries))
	copy(top, entries)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].UpdatedAt.After(top[j].UpdatedAt)
	})
	if len(top) > maxLength {
		top = top[:maxLength]
	}
	return top
}

func countUnseen(entries []model.AggregatedActivity) int {
	count := 0
	for i := range entries {
		if !entries[i].IsSeen() {
			count++
		}
	}
	return count
}
