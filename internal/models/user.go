package models

import "time"

// User is a chat user that has talked to the bot at least once.
type User struct {
	UserID int64 `gorm:"primaryKey;autoIncrement:false"` // Chat user id.

	FirstName    string `gorm:"type:text"`
	LastName     string `gorm:"type:text"`
	Username     string `gorm:"type:text;index"`
	LanguageCode string `gorm:"type:varchar(16)"`

	JoinedAt     time.Time `gorm:"not null;autoCreateTime"`
	LastActiveAt time.Time `gorm:"not null;index"` // Refreshed on every inbound event.
}
