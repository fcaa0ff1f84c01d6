package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	GroupManager  = "manager"
	GroupReviewer = "reviewer"
)

// UserProfile is the central account record of the platform.
//
// The delegates and cc relations are each a single join table traversed
// from both ends, so Delegates/RepresentedUsers (and CCUsers/CCingUsers)
// cannot diverge: a row (user, delegate) IS the membership in both
// directions.
type UserProfile struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"size:50" json:"title"`
	FirstName    string    `gorm:"size:100" json:"first_name"`
	LastName     string    `gorm:"size:100" json:"last_name"`
	Email        *string   `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	IsSuperuser  bool      `gorm:"default:false" json:"is_superuser"`
	Language     string    `gorm:"size:10;default:en" json:"language"`

	// Login keys let externally invited participants vote without a password.
	LoginKey           *int64     `gorm:"uniqueIndex" json:"-"`
	LoginKeyValidUntil *time.Time `json:"-"`

	LastLogin *time.Time `json:"-"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"-"`

	Groups []Group `gorm:"many2many:user_profile_groups" json:"groups,omitempty"`

	// Users who may act on this user's behalf, and the inverse traversal.
	Delegates        []UserProfile `gorm:"many2many:user_profile_delegates;joinForeignKey:user_profile_id;joinReferences:delegate_id" json:"delegates,omitempty"`
	RepresentedUsers []UserProfile `gorm:"many2many:user_profile_delegates;joinForeignKey:delegate_id;joinReferences:user_profile_id" json:"represented_users,omitempty"`

	// Users CC'd on this user's notifications, and the inverse traversal.
	CCUsers    []UserProfile `gorm:"many2many:user_profile_cc_users;joinForeignKey:user_profile_id;joinReferences:cc_user_id" json:"cc_users,omitempty"`
	CCingUsers []UserProfile `gorm:"many2many:user_profile_cc_users;joinForeignKey:cc_user_id;joinReferences:user_profile_id" json:"ccing_users,omitempty"`

	CoursesResponsibleFor      []Course                `gorm:"foreignKey:ResponsibleID" json:"courses_responsible_for,omitempty"`
	Contributions              []Contribution          `gorm:"foreignKey:ContributorID" json:"contributions,omitempty"`
	EvaluationsParticipatingIn []Evaluation            `gorm:"many2many:evaluation_participants" json:"evaluations_participating_in,omitempty"`
	EvaluationsVotedFor        []Evaluation            `gorm:"many2many:evaluation_voters" json:"evaluations_voted_for,omitempty"`
	RewardPointGrantings       []RewardPointGranting   `gorm:"foreignKey:UserProfileID" json:"reward_point_grantings,omitempty"`
	RewardPointRedemptions     []RewardPointRedemption `gorm:"foreignKey:UserProfileID" json:"reward_point_redemptions,omitempty"`
}

func (u *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName is what operator-facing messages and the search index show.
func (u *UserProfile) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Email != nil {
		return *u.Email
	}
	return u.ID.String()
}

func (u *UserProfile) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}
