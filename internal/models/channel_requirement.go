package models

import "time"

// Verification classes of a channel requirement.
const (
	// VerificationCheckable channels expose membership through the messenger.
	VerificationCheckable = "checkable"
	// VerificationRequestOnly channels are joined through a join-request invite link.
	VerificationRequestOnly = "request-only"
	// VerificationExternalLink entries point outside the messenger (e.g. a profile page).
	VerificationExternalLink = "external-link"
)

// ChannelRequirement is one entry of the subscription gate.
type ChannelRequirement struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Target      string `gorm:"type:text;not null;uniqueIndex"` // Chat id, @username or URL.
	DisplayName string `gorm:"type:text;not null"`             // Button label.
	Username    string `gorm:"type:text"`                      // Public username when known.
	URL         string `gorm:"type:text"`                      // Join URL shown to users.

	Required          bool   `gorm:"not null"`                                           // Only required entries are enforced.
	VerificationClass string `gorm:"type:varchar(32);not null;default:'checkable';index"` // checkable, request-only or external-link.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
