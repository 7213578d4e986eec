package models

import "time"

// Premium request statuses.
const (
	PremiumStatusPending  = "pending"
	PremiumStatusApproved = "approved"
	PremiumStatusRejected = "rejected"
	PremiumStatusPartial  = "partial"
)

// Receipt kinds accepted for a premium request.
const (
	ReceiptKindPhoto    = "photo"
	ReceiptKindDocument = "document"
)

// PremiumRequest is a user's payment claim for a premium plan awaiting admin review.
type PremiumRequest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequesterID     int64  `gorm:"not null;index"` // Requesting user id.
	RequesterChatID int64  `gorm:"not null"`       // Chat the outcome is sent to.
	FirstName       string `gorm:"type:text"`
	Username        string `gorm:"type:text"`

	PlanLabel      string `gorm:"type:varchar(32);not null"` // Display label, e.g. "3 oy".
	DurationMonths int    `gorm:"not null"`
	Amount         int64  `gorm:"not null"` // Price at request time.

	ReceiptFileID string `gorm:"type:text;not null"`
	ReceiptKind   string `gorm:"type:varchar(16);not null"` // photo or document.

	Status    string `gorm:"type:varchar(16);not null;default:'pending';index"` // pending, approved, rejected or partial.
	DecidedBy *int64 // Admin that decided the request.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
