package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"anoa.com/notifeed/internal/model"
)

type fakeSetClient struct {
	mu      sync.Mutex
	members map[string]struct{}

	// member flagged while a snapshot is being taken, simulating a
	// mutation that lands mid-pass
	flagDuringSnapshot string
}

func newFakeSetClient(members ...string) *fakeSetClient {
	c := &fakeSetClient{members: map[string]struct{}{}}
	for _, m := range members {
		c.members[m] = struct{}{}
	}
	return c
}

func (c *fakeSetClient) SAdd(_ context.Context, _ string, members ...interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		c.members[m.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (c *fakeSetClient) SMembers(_ context.Context, _ string) *redis.StringSliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]string, 0, len(c.members))
	for m := range c.members {
		snapshot = append(snapshot, m)
	}
	sort.Strings(snapshot)
	if c.flagDuringSnapshot != "" {
		c.members[c.flagDuringSnapshot] = struct{}{}
		c.flagDuringSnapshot = ""
	}
	return redis.NewStringSliceResult(snapshot, nil)
}

func (c *fakeSetClient) SRem(_ context.Context, _ string, members ...interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := int64(0)
	for _, m := range members {
		if _, ok := c.members[m.(string)]; ok {
			delete(c.members, m.(string))
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (c *fakeSetClient) contains(member string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[member]
	return ok
}

func (c *fakeSetClient) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

func TestReconcileKeepsUsersFlaggedMidPass(t *testing.T) {
	fx := newTestFeed(t)
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	set := newFakeSetClient(alice.String(), bob.String())
	set.flagDuringSnapshot = carol.String()

	r := NewReconciler(set, fx.feed, time.Minute, zerolog.Nop())
	r.reconcile(context.Background())

	if set.contains(alice.String()) || set.contains(bob.String()) {
		t.Fatalf("processed users still flagged")
	}
	if !set.contains(carol.String()) {
		t.Fatalf("user flagged mid-pass was dropped without being reconciled")
	}
}

func TestReconcileRetainsUserOnRefreshFailure(t *testing.T) {
	fx := newTestFeed(t)
	fx.store.rangeErr = errors.New("store down")
	userID := uuid.New()
	set := newFakeSetClient(userID.String())

	r := NewReconciler(set, fx.feed, time.Minute, zerolog.Nop())
	r.reconcile(context.Background())

	if !set.contains(userID.String()) {
		t.Fatalf("user dropped from pending set despite failed refresh")
	}
}

func TestReconcileDropsInvalidMembers(t *testing.T) {
	fx := newTestFeed(t)
	set := newFakeSetClient("not-a-uuid")

	r := NewReconciler(set, fx.feed, time.Minute, zerolog.Nop())
	r.reconcile(context.Background())

	if set.contains("not-a-uuid") {
		t.Fatalf("unparseable member must not be retried forever")
	}
}

func TestReconcileRepairsStaleCount(t *testing.T) {
	fx := newTestFeed(t)
	set := newFakeSetClient()
	r := NewReconciler(set, fx.feed, time.Minute, zerolog.Nop())
	fx.feed.SetPendingMarker(r)
	userID := uuid.New()

	// store write lands, counter write dies: the count is now stale
	fx.counter.setErr = errors.New("counter down")
	if _, err := fx.feed.AddMany(context.Background(), userID, []model.Activity{
		{ID: uuid.New(), Actor: "alice", Verb: "like", Object: "post:1", Time: time.Now().UTC()},
	}); err == nil {
		t.Fatalf("expected counter failure")
	}
	if count, _ := fx.feed.UnseenCount(context.Background(), userID); count != 0 {
		t.Fatalf("count = %d before repair, want stale 0", count)
	}

	fx.counter.setErr = nil
	r.reconcile(context.Background())

	count, err := fx.feed.UnseenCount(context.Background(), userID)
	if err != nil {
		t.Fatalf("UnseenCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d after repair, want 1", count)
	}
	if set.size() != 0 {
		t.Fatalf("pending set holds %d members after repair, want 0", set.size())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fx := newTestFeed(t)
	r := NewReconciler(newFakeSetClient(), fx.feed, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after context cancellation")
	}
}
