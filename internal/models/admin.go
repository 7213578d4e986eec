package models

import (
	"time"

	"gorm.io/datatypes"
)

// Admin is a chat user allowed to operate the bot's admin panel.
type Admin struct {
	UserID int64 `gorm:"primaryKey;autoIncrement:false"` // Chat user id.

	DisplayName string `gorm:"type:text"` // First and last name at the time of promotion.
	Username    string `gorm:"type:text"` // Chat username without "@".

	IsSuperAdmin bool `gorm:"not null;default:false"` // Grants every capability; cannot be demoted.

	Permissions datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Capability keys in JSON.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
