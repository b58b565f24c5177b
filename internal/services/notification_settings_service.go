package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/models"
	"github.com/charlesng35/doctracker/internal/reminders"
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
)

// NotificationSettings is the effective reminder configuration of a user.
type NotificationSettings struct {
	Enabled       bool  `json:"enabled"`
	Intervals     []int `json:"intervals"`
	UsingDefaults bool  `json:"using_defaults"`
}

// UpdateNotificationSettingsInput describes requested changes. A nil pointer
// leaves the value untouched; ResetIntervals restores the default schedule.
type UpdateNotificationSettingsInput struct {
	Enabled        *bool
	Intervals      []int
	ResetIntervals bool
}

// NotificationSettingsService reads and writes the notification keys of a
// user's settings blob. Other keys in the blob are preserved.
type NotificationSettingsService struct {
	db *gorm.DB
}

// NewNotificationSettingsService constructs a NotificationSettingsService.
func NewNotificationSettingsService(db *gorm.DB) (*NotificationSettingsService, error) {
	if db == nil {
		return nil, fmt.Errorf("notification settings service: db is required")
	}
	return &NotificationSettingsService{db: db}, nil
}

// Get returns the effective settings, applying the same fallbacks the reminder engine uses.
func (s *NotificationSettingsService) Get(ctx context.Context, userID string) (NotificationSettings, error) {
	settings, err := s.load(ensureContext(ctx), userID)
	if err != nil {
		return NotificationSettings{}, err
	}
	return effectiveSettings(settings), nil
}

// Update validates and persists the requested changes.
func (s *NotificationSettingsService) Update(ctx context.Context, userID string, input UpdateNotificationSettingsInput) (NotificationSettings, error) {
	ctx = ensureContext(ctx)

	settings, err := s.load(ctx, userID)
	if err != nil {
		return NotificationSettings{}, err
	}

	next := make(datatypes.JSONMap, len(settings)+2)
	for k, v := range settings {
		next[k] = v
	}

	if input.Enabled != nil {
		next[models.SettingNotificationsEnabled] = *input.Enabled
	}
	switch {
	case input.ResetIntervals:
		delete(next, models.SettingNotificationIntervals)
	case input.Intervals != nil:
		intervals, err := reminders.ValidateIntervals(input.Intervals)
		if err != nil {
			return NotificationSettings{}, apperrors.NewBadRequest(err.Error())
		}
		next[models.SettingNotificationIntervals] = intervals
	}

	err = s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", strings.TrimSpace(userID)).
		Update("settings", next).Error
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("notification settings service: update settings: %w", err)
	}

	stored, err := s.load(ctx, userID)
	if err != nil {
		return NotificationSettings{}, err
	}
	return effectiveSettings(stored), nil
}

func (s *NotificationSettingsService) load(ctx context.Context, userID string) (datatypes.JSONMap, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Select("id", "settings").
		Where("id = ?", userID).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notification settings service: load settings: %w", err)
	}
	return user.Settings, nil
}

func effectiveSettings(settings datatypes.JSONMap) NotificationSettings {
	raw := map[string]any(settings)
	intervals := reminders.ResolveIntervals(raw[models.SettingNotificationIntervals])
	_, custom := raw[models.SettingNotificationIntervals]
	return NotificationSettings{
		Enabled:       reminders.NotificationsEnabled(raw),
		Intervals:     intervals,
		UsingDefaults: !custom || slices.Equal(intervals, reminders.DefaultIntervals()),
	}
}
