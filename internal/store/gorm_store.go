package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/db"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

// DB exposes the underlying connection.
func (s *GormStore) DB() *gorm.DB { return s.db }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errkind.Wrap(errkind.NotFound, op, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return errkind.Wrap(errkind.Conflict, op, err)
	}
	return errkind.Wrap(errkind.Persistence, op, err)
}

// isUniqueViolation matches the driver messages gorm does not translate by default.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// GetAdmin loads an admin by user id.
func (s *GormStore) GetAdmin(ctx context.Context, userID int64) (*models.Admin, error) {
	var admin models.Admin
	if errFind := s.db.WithContext(ctx).First(&admin, "user_id = ?", userID).Error; errFind != nil {
		return nil, persistence("store.get_admin", errFind)
	}
	return &admin, nil
}

// ListAdmins returns admins, superadmins first.
func (s *GormStore) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	var admins []models.Admin
	if errFind := s.db.WithContext(ctx).
		Order("is_super_admin DESC").
		Order("created_at ASC").
		Find(&admins).Error; errFind != nil {
		return nil, persistence("store.list_admins", errFind)
	}
	return admins, nil
}

// CreateAdmin inserts a new admin row.
func (s *GormStore) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	if admin == nil {
		return errkind.New(errkind.Validation, "store.create_admin", "admin is nil")
	}
	return persistence("store.create_admin", s.db.WithContext(ctx).Create(admin).Error)
}

// UpdateAdminPermissions replaces the capability list of an admin.
func (s *GormStore) UpdateAdminPermissions(ctx context.Context, userID int64, keys []string) error {
	raw, errMarshal := permissions.MarshalPermissions(keys)
	if errMarshal != nil {
		return errkind.Wrap(errkind.Validation, "store.update_admin_permissions", errMarshal)
	}
	res := s.db.WithContext(ctx).Model(&models.Admin{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"permissions": raw, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return persistence("store.update_admin_permissions", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence("store.update_admin_permissions", gorm.ErrRecordNotFound)
	}
	return nil
}

// DeleteAdmin removes a non-super admin.
func (s *GormStore) DeleteAdmin(ctx context.Context, userID int64) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND is_super_admin = ?", userID, false).
		Delete(&models.Admin{})
	if res.Error != nil {
		return persistence("store.delete_admin", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence("store.delete_admin", gorm.ErrRecordNotFound)
	}
	return nil
}

// EnsureSuperAdmin creates or upgrades the superadmin row.
func (s *GormStore) EnsureSuperAdmin(ctx context.Context, userID int64, keys []string) error {
	raw, errMarshal := permissions.MarshalPermissions(keys)
	if errMarshal != nil {
		return errkind.Wrap(errkind.Validation, "store.ensure_super_admin", errMarshal)
	}
	admin := models.Admin{UserID: userID, IsSuperAdmin: true, Permissions: raw}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_super_admin", "permissions", "updated_at"}),
	}).Create(&admin).Error
	return persistence("store.ensure_super_admin", errUpsert)
}

// ListChannelRequirements returns the gate entries in creation order.
func (s *GormStore) ListChannelRequirements(ctx context.Context) ([]models.ChannelRequirement, error) {
	var rows []models.ChannelRequirement
	if errFind := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, persistence("store.list_channels", errFind)
	}
	return rows, nil
}

// CreateChannelRequirement inserts a gate entry.
func (s *GormStore) CreateChannelRequirement(ctx context.Context, req *models.ChannelRequirement) error {
	if req == nil {
		return errkind.New(errkind.Validation, "store.create_channel", "requirement is nil")
	}
	return persistence("store.create_channel", s.db.WithContext(ctx).Create(req).Error)
}

// DeleteChannelRequirement removes a gate entry by id.
func (s *GormStore) DeleteChannelRequirement(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&models.ChannelRequirement{}, id)
	if res.Error != nil {
		return persistence("store.delete_channel", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence("store.delete_channel", gorm.ErrRecordNotFound)
	}
	return nil
}

// GetContentItem loads a content item by code.
func (s *GormStore) GetContentItem(ctx context.Context, code string) (*models.ContentItem, error) {
	var item models.ContentItem
	if errFind := s.db.WithContext(ctx).First(&item, "code = ?", code).Error; errFind != nil {
		return nil, persistence("store.get_content", errFind)
	}
	return &item, nil
}

// CreateContentItem inserts a content item; a taken code yields a Conflict error.
func (s *GormStore) CreateContentItem(ctx context.Context, item *models.ContentItem) error {
	if item == nil {
		return errkind.New(errkind.Validation, "store.create_content", "item is nil")
	}
	return persistence("store.create_content", s.db.WithContext(ctx).Create(item).Error)
}

// DeleteContentItem removes a content item by code.
func (s *GormStore) DeleteContentItem(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).Where("code = ?", code).Delete(&models.ContentItem{})
	if res.Error != nil {
		return persistence("store.delete_content", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence("store.delete_content", gorm.ErrRecordNotFound)
	}
	return nil
}

// CodeExists reports whether code is taken.
func (s *GormStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("code = ?", code).
		Count(&count).Error; errCount != nil {
		return false, persistence("store.code_exists", errCount)
	}
	return count > 0, nil
}

// MaxNumericCode returns the largest canonical numeric code in range, or 0 when there is none.
func (s *GormStore) MaxNumericCode(ctx context.Context) (int, error) {
	var codes []string
	if errPluck := s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Pluck("code", &codes).Error; errPluck != nil {
		return 0, persistence("store.max_code", errPluck)
	}
	maxCode := 0
	for _, code := range codes {
		n, errAtoi := strconv.Atoi(code)
		if errAtoi != nil || strconv.Itoa(n) != code {
			continue
		}
		if n < models.MinNumericCode || n > models.MaxNumericCode {
			continue
		}
		if n > maxCode {
			maxCode = n
		}
	}
	return maxCode, nil
}

// CreatePremiumRequest inserts a pending premium request.
func (s *GormStore) CreatePremiumRequest(ctx context.Context, req *models.PremiumRequest) error {
	if req == nil {
		return errkind.New(errkind.Validation, "store.create_premium", "request is nil")
	}
	if req.Status == "" {
		req.Status = models.PremiumStatusPending
	}
	return persistence("store.create_premium", s.db.WithContext(ctx).Create(req).Error)
}

// GetPremiumRequest loads a premium request by id.
func (s *GormStore) GetPremiumRequest(ctx context.Context, id uint64) (*models.PremiumRequest, error) {
	var req models.PremiumRequest
	if errFind := s.db.WithContext(ctx).First(&req, id).Error; errFind != nil {
		return nil, persistence("store.get_premium", errFind)
	}
	return &req, nil
}

// TransitionPremiumRequest moves a request from one status to another in a single conditional
// update. It reports false when the request was not in status from.
func (s *GormStore) TransitionPremiumRequest(ctx context.Context, id uint64, from, to string, decidedBy int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PremiumRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"decided_by": decidedBy,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, persistence("store.transition_premium", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// PendingPremiumRequestFor returns the requester's pending request, if any.
func (s *GormStore) PendingPremiumRequestFor(ctx context.Context, requesterID int64) (*models.PremiumRequest, error) {
	var req models.PremiumRequest
	errFind := s.db.WithContext(ctx).
		Where("requester_id = ? AND status = ?", requesterID, models.PremiumStatusPending).
		Order("id DESC").
		First(&req).Error
	if errFind != nil {
		return nil, persistence("store.pending_premium", errFind)
	}
	return &req, nil
}

// ListPremiumRequests returns the newest requests, optionally filtered by status.
func (s *GormStore) ListPremiumRequests(ctx context.Context, status string, limit int) ([]models.PremiumRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.db.WithContext(ctx).Model(&models.PremiumRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reqs []models.PremiumRequest
	if errFind := q.Order("id DESC").Limit(limit).Find(&reqs).Error; errFind != nil {
		return nil, persistence("store.list_premium", errFind)
	}
	return reqs, nil
}

// PremiumStats counts premium requests per status.
func (s *GormStore) PremiumStats(ctx context.Context) (PremiumStats, error) {
	var rows []struct {
		Status string
		Total  int64
		Amount int64
	}
	errScan := s.db.WithContext(ctx).Model(&models.PremiumRequest{}).
		Select("status, COUNT(*) AS total, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Scan(&rows).Error
	if errScan != nil {
		return PremiumStats{}, persistence("store.premium_stats", errScan)
	}
	out := PremiumStats{ByStatus: make(map[string]int64, len(rows))}
	for _, row := range rows {
		out.ByStatus[row.Status] = row.Total
		out.Total += row.Total
		if row.Status == models.PremiumStatusApproved {
			out.ApprovedAmount = row.Amount
		}
	}
	errUsers := s.db.WithContext(ctx).Model(&models.PremiumRequest{}).
		Where("status = ?", models.PremiumStatusApproved).
		Distinct("requester_id").
		Count(&out.ApprovedUsers).Error
	if errUsers != nil {
		return PremiumStats{}, persistence("store.premium_stats", errUsers)
	}
	return out, nil
}

// UpsertUser registers a user or refreshes its profile and activity time.
func (s *GormStore) UpsertUser(ctx context.Context, user *models.User) error {
	if user == nil || user.UserID == 0 {
		return errkind.New(errkind.Validation, "store.upsert_user", "user id is required")
	}
	if user.LastActiveAt.IsZero() {
		user.LastActiveAt = time.Now().UTC()
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "username", "language_code", "last_active_at"}),
	}).Create(user).Error
	return persistence("store.upsert_user", errUpsert)
}

// FindUserByUsername looks a registered user up by username, ignoring case and a leading "@".
func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, errkind.New(errkind.Validation, "store.find_user", "username is empty")
	}
	var user models.User
	errFind := s.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		First(&user).Error
	if errFind != nil {
		return nil, persistence("store.find_user", errFind)
	}
	return &user, nil
}

// ListRecentContent returns the newest items.
func (s *GormStore) ListRecentContent(ctx context.Context, limit int) ([]models.ContentItem, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []models.ContentItem
	if errFind := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&items).Error; errFind != nil {
		return nil, persistence("store.recent_content", errFind)
	}
	return items, nil
}

// SearchContent returns items whose name contains query, newest first.
func (s *GormStore) SearchContent(ctx context.Context, query string, limit int) ([]models.ContentItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.NewReplacer("%", "", "_", "").Replace(query) + "%"
	var items []models.ContentItem
	errFind := s.db.WithContext(ctx).
		Where(db.CaseInsensitiveLikeExpr(s.db, "name"), db.NormalizeLikePattern(s.db, pattern)).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if errFind != nil {
		return nil, persistence("store.search_content", errFind)
	}
	return items, nil
}

// ListUserIDs returns every registered user id.
func (s *GormStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if errPluck := s.db.WithContext(ctx).Model(&models.User{}).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; errPluck != nil {
		return nil, persistence("store.list_user_ids", errPluck)
	}
	return ids, nil
}

// Stats counts registry rows; "today" starts at midnight UTC of now.
func (s *GormStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var out Stats
	dayStart := now.UTC().Truncate(24 * time.Hour)
	conn := s.db.WithContext(ctx)
	counts := []struct {
		target *int64
		query  *gorm.DB
	}{
		{&out.Users, conn.Model(&models.User{})},
		{&out.ActiveToday, conn.Model(&models.User{}).Where("last_active_at >= ?", dayStart)},
		{&out.NewToday, conn.Model(&models.User{}).Where("joined_at >= ?", dayStart)},
		{&out.ContentItems, conn.Model(&models.ContentItem{})},
		{&out.Channels, conn.Model(&models.ChannelRequirement{})},
		{&out.Admins, conn.Model(&models.Admin{})},
		{&out.PendingPremium, conn.Model(&models.PremiumRequest{}).Where("status = ?", models.PremiumStatusPending)},
	}
	for _, c := range counts {
		if errCount := c.query.Count(c.target).Error; errCount != nil {
			return Stats{}, persistence("store.stats", fmt.Errorf("count: %w", errCount))
		}
	}
	return out, nil
}
