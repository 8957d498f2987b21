package model

import (
	"time"

	"github.com/google/uuid"
)

// Activity is a single raw activity delivered to a user's notification feed.
type Activity struct {
	ID     uuid.UUID `json:"id"`
	Actor  string    `json:"actor"`  // user who triggered the activity
	Verb   string    `json:"verb"`   // 'like', 'follow', 'comment', ...
	Object string    `json:"object"` // ID of the object acted upon
	Target string    `json:"target,omitempty"`
	Time   time.Time `json:"time"`
}

// AggregatedActivity is a group of raw activities sharing an aggregation key,
// carrying group-level seen/read state. Its rank in the feed follows UpdatedAt.
type AggregatedActivity struct {
	Group      string     `json:"group"`
	Activities []Activity `json:"activities"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SeenAt     *time.Time `json:"seen_at,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

func (a *AggregatedActivity) IsSeen() bool {
	return a.SeenAt != nil
}

func (a *AggregatedActivity) IsRead() bool {
	return a.ReadAt != nil
}
