package feed

import (
	"fmt"

	"github.com/google/uuid"
)

// Per-user key namespace. Version prefix stays in the key so a format change
// can roll out next to old data.
const (
	entriesKeyFormat = "notification_feed:1:user:%s"
	countKeyFormat   = "notification_feed:1:user:%s:count"
	lockKeyFormat    = "notification_feed:1:user:%s:lock"
	pubsubKeyFormat  = "notification_feed:1:user:%s:pubsub"

	// set of user ids whose count needs a background re-derive
	pendingReconcileKey = "notification_feed:1:pending_reconcile"
)

// EntriesKey is the sorted set holding the user's aggregated activities.
func EntriesKey(userID uuid.UUID) string {
	return fmt.Sprintf(entriesKeyFormat, userID)
}

// CountKey is the cell holding the denormalized unseen count.
func CountKey(userID uuid.UUID) string {
	return fmt.Sprintf(countKeyFormat, userID)
}

// LockKey guards composite mutations of the user's feed.
func LockKey(userID uuid.UUID) string {
	return fmt.Sprintf(lockKeyFormat, userID)
}

// PubSubKey is the channel receiving live count updates.
func PubSubKey(userID uuid.UUID) string {
	return fmt.Sprintf(pubsubKeyFormat, userID)
}
