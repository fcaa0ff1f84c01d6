package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationTypeMergeWarning = "merge_warning"
	NotificationTypeUserDeleted  = "user_deleted"
)

// Notification is an operator-facing message about account maintenance
// (merge caveats, deletions). It is persisted and additionally fanned out
// over the staff pub/sub channel.
type Notification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      string    `gorm:"size:50;not null" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
