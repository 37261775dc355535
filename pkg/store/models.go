package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type GuestModel struct {
	ID         string    `gorm:"primaryKey"`
	Name       string    `gorm:"uniqueIndex;not null;size:100"`
	NameKey    string    `gorm:"uniqueIndex;not null;size:100"`
	RSVPStatus *string   `gorm:"column:rsvp_status;size:20"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

func (GuestModel) TableName() string { return "guests" }

type SessionModel struct {
	Token      string         `gorm:"primaryKey"`
	GuestID    string         `gorm:"not null;index"`
	Transcript datatypes.JSON `gorm:"column:transcript"`
	TurnCount  int            `gorm:"column:turn_count;not null;default:0"`
	ExpiresAt  *time.Time     `gorm:"index"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time
}

func (SessionModel) TableName() string { return "sessions" }
