package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Semester struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (s *Semester) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type Course struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	SemesterID *uuid.UUID `gorm:"type:uuid" json:"semester_id,omitempty"`
	Semester   *Semester  `gorm:"foreignKey:SemesterID" json:"semester,omitempty"`

	// The user responsible for the course.
	ResponsibleID uuid.UUID    `gorm:"type:uuid;not null;index" json:"responsible_id"`
	Responsible   *UserProfile `gorm:"foreignKey:ResponsibleID" json:"responsible,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Evaluation struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"size:255;not null" json:"name"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Course   *Course   `gorm:"foreignKey:CourseID" json:"course,omitempty"`

	// Participants are invited to respond; voters are participants who did.
	Participants []UserProfile `gorm:"many2many:evaluation_participants" json:"participants,omitempty"`
	Voters       []UserProfile `gorm:"many2many:evaluation_voters" json:"voters,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (e *Evaluation) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Contribution records a user's contribution to one evaluation.
// A contributor can hold at most one contribution per evaluation.
type Contribution struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	EvaluationID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_contribution_evaluation_contributor" json:"evaluation_id"`
	Evaluation    *Evaluation  `gorm:"foreignKey:EvaluationID" json:"evaluation,omitempty"`
	ContributorID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_contribution_evaluation_contributor" json:"contributor_id"`
	Contributor   *UserProfile `gorm:"foreignKey:ContributorID" json:"contributor,omitempty"`
	Label         string       `gorm:"size:255" json:"label"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Contribution) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
