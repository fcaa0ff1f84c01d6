package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardPointGranting is a ledger entry awarding points to a user.
type RewardPointGranting struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserProfileID uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_profile_id"`
	UserProfile   *UserProfile `gorm:"foreignKey:UserProfileID" json:"user_profile,omitempty"`
	Points        int          `gorm:"not null" json:"points"`
	Reason        string       `gorm:"size:255" json:"reason"`
	GrantedAt     time.Time    `gorm:"autoCreateTime" json:"granted_at"`
}

func (g *RewardPointGranting) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// RewardPointRedemption is a ledger entry spending previously granted points.
type RewardPointRedemption struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserProfileID uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_profile_id"`
	UserProfile   *UserProfile `gorm:"foreignKey:UserProfileID" json:"user_profile,omitempty"`
	Points        int          `gorm:"not null" json:"points"`
	RedeemedAt    time.Time    `gorm:"autoCreateTime" json:"redeemed_at"`
}

func (r *RewardPointRedemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
