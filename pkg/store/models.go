package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	DisplayName  string
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type RecordModel struct {
	ID            string         `gorm:"primaryKey"`
	ImageFilename string         `gorm:"not null"`
	ImageRef      string         `gorm:"type:text;not null"`
	DataFilename  string         `gorm:"not null"`
	DataRef       string         `gorm:"type:text;not null"`
	RefKind       string         `gorm:"not null"`
	Source        string         `gorm:"not null"`
	Analysis      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
}
