package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.

// DocumentModel holds one top-level subtree, such as users/{uid}, as JSONB.
type DocumentModel struct {
	Path      string         `gorm:"primaryKey"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type IdentityModel struct {
	ID        string    `gorm:"primaryKey"`
	Email     string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (IdentityModel) TableName() string { return "identities" }
