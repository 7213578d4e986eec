package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefreshSnapshot reloads all settings from the database into the in-memory snapshot.
//
// It must run at startup; until then every Load* accessor returns defaults.
func RefreshSnapshot(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	newest := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if row.UpdatedAt.After(newest) {
			newest = row.UpdatedAt
		}
	}
	StoreSnapshot(newest, values)
	return nil
}

// Service writes settings rows and keeps the snapshot current.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Put stores value under key and refreshes the snapshot.
func (s *Service) Put(ctx context.Context, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errkind.New(errkind.Validation, "settings.put", "empty key")
	}
	raw, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return errkind.Wrap(errkind.Validation, "settings.put", errMarshal)
	}
	row := models.Setting{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if errUpsert != nil {
		return errkind.Wrap(errkind.Persistence, "settings.put", errUpsert)
	}
	if errRefresh := RefreshSnapshot(ctx, s.db); errRefresh != nil {
		return errkind.Wrap(errkind.Persistence, "settings.put", errRefresh)
	}
	return nil
}

// SetBaseChannel stores the origin channel.
func (s *Service) SetBaseChannel(ctx context.Context, ch BaseChannel) error {
	return s.Put(ctx, BaseChannelKey, ch)
}

// UpdateChannelButton applies fn to the current promo button and stores the result.
func (s *Service) UpdateChannelButton(ctx context.Context, fn func(*ChannelButton)) error {
	btn, _ := LoadChannelButton()
	fn(&btn)
	return s.Put(ctx, ChannelButtonKey, btn)
}

// UpdateSubscription applies fn to the gate settings and stores the result.
func (s *Service) UpdateSubscription(ctx context.Context, fn func(*Subscription)) error {
	sub := LoadSubscription()
	fn(&sub)
	return s.Put(ctx, SubscriptionKey, sub)
}

// SetStartMessage stores the /start template.
func (s *Service) SetStartMessage(ctx context.Context, template string) error {
	return s.Put(ctx, StartMessageKey, template)
}

// UpdatePremium applies fn to the premium settings and stores the result.
func (s *Service) UpdatePremium(ctx context.Context, fn func(*Premium)) error {
	p := LoadPremium()
	fn(&p)
	return s.Put(ctx, PremiumKey, p)
}
