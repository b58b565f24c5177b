package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.ReminderDispatch{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}

// SeedData records the schema initialisation time once.
func SeedData(db *gorm.DB) error {
	current, err := GetSystemSetting(context.Background(), db, SchemaInitialisedSetting)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return UpsertSystemSetting(context.Background(), db, SchemaInitialisedSetting, time.Now().UTC().Format(time.RFC3339))
}
