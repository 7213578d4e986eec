package db

import (
	"fmt"

	"github.com/ibrohim2505/prokinobot/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the bot uses.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.ChannelRequirement{},
		&models.ContentItem{},
		&models.PremiumRequest{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
