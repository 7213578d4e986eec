package models

import "time"

// Numeric content codes are decimal integers in [MinNumericCode, MaxNumericCode].
const (
	MinNumericCode = 1
	MaxNumericCode = 10000
)

// ContentItem maps a retrieval code to a message posted in the origin channel.
type ContentItem struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code string `gorm:"type:varchar(16);not null;uniqueIndex"` // Numeric or generated code.

	OriginChannelID int64 `gorm:"not null"` // Channel the media was posted to.
	OriginMessageID int   `gorm:"not null"` // Message id inside the origin channel.

	Name            *string `gorm:"type:text"`
	Genre           *string `gorm:"type:text"`
	DurationSeconds *int

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
