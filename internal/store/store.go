// Package store persists admins, users, channel requirements, content items and premium
// requests.
package store

import (
	"context"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/models"
)

// Store is the persistence surface used by the bot components.
type Store interface {
	GetAdmin(ctx context.Context, userID int64) (*models.Admin, error)
	ListAdmins(ctx context.Context) ([]models.Admin, error)
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	UpdateAdminPermissions(ctx context.Context, userID int64, keys []string) error
	DeleteAdmin(ctx context.Context, userID int64) error
	EnsureSuperAdmin(ctx context.Context, userID int64, keys []string) error

	ListChannelRequirements(ctx context.Context) ([]models.ChannelRequirement, error)
	CreateChannelRequirement(ctx context.Context, req *models.ChannelRequirement) error
	DeleteChannelRequirement(ctx context.Context, id uint64) error

	GetContentItem(ctx context.Context, code string) (*models.ContentItem, error)
	CreateContentItem(ctx context.Context, item *models.ContentItem) error
	DeleteContentItem(ctx context.Context, code string) error
	SearchContent(ctx context.Context, query string, limit int) ([]models.ContentItem, error)
	ListRecentContent(ctx context.Context, limit int) ([]models.ContentItem, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	MaxNumericCode(ctx context.Context) (int, error)

	CreatePremiumRequest(ctx context.Context, req *models.PremiumRequest) error
	GetPremiumRequest(ctx context.Context, id uint64) (*models.PremiumRequest, error)
	TransitionPremiumRequest(ctx context.Context, id uint64, from, to string, decidedBy int64) (bool, error)
	PendingPremiumRequestFor(ctx context.Context, requesterID int64) (*models.PremiumRequest, error)
	ListPremiumRequests(ctx context.Context, status string, limit int) ([]models.PremiumRequest, error)
	PremiumStats(ctx context.Context) (PremiumStats, error)

	UpsertUser(ctx context.Context, user *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// Stats summarizes the registry for the admin panel.
type Stats struct {
	Users          int64
	ActiveToday    int64
	NewToday       int64
	ContentItems   int64
	Channels       int64
	Admins         int64
	PendingPremium int64
}

// PremiumStats summarizes premium requests.
type PremiumStats struct {
	Total          int64
	ByStatus       map[string]int64
	ApprovedUsers  int64 // Distinct requesters with an approved request.
	ApprovedAmount int64 // Sum of approved amounts.
}
