package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserMergeLog tracks committed account merges. It provides an audit trail
// after the secondary record is gone: which account absorbed which, and
// with what caveats.
type UserMergeLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PrimaryID      uuid.UUID `gorm:"type:uuid;not null;index" json:"primary_id"`
	SecondaryID    uuid.UUID `gorm:"type:uuid;not null;index" json:"secondary_id"`
	SecondaryEmail string    `gorm:"size:100" json:"secondary_email"`
	Warnings       string    `gorm:"size:255" json:"warnings"` // comma-separated warning tags
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *UserMergeLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (UserMergeLog) TableName() string {
	return "user_merge_logs"
}
