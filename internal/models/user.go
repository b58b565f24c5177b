package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Settings keys read by the reminder engine.
const (
	SettingNotificationsEnabled  = "notifications_enabled"
	SettingNotificationIntervals = "notification_intervals"
)

// User is the profile owned by the identity subsystem. The reminder engine
// only reads it, apart from the notification keys inside Settings.
type User struct {
	ID       string            `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string            `gorm:"uniqueIndex;size:320" json:"email"`
	Name     string            `json:"name"`
	FullName string            `json:"full_name"`
	Settings datatypes.JSONMap `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
