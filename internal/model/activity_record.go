package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityRecord is the archived copy of an appended raw activity. The feed
// in redis stays the source of truth; this table only keeps history.
type ActivityRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"` // User who receives the notification
	Actor      string    `gorm:"type:varchar(255);not null" json:"actor"` // User who triggered the activity
	Verb       string    `gorm:"type:varchar(50);not null" json:"verb"`
	Object     string    `gorm:"type:varchar(255);not null" json:"object"`
	Target     string    `gorm:"type:varchar(255)" json:"target"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
