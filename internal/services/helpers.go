package services

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/doctracker/internal/reminders"
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
	"github.com/charlesng35/doctracker/pkg/validator"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

// parseExpirationDate converts a YYYY-MM-DD string into a calendar date at
// midnight UTC. An empty string means "no expiration date".
func parseExpirationDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(validator.CalendarDateLayout, value)
	if err != nil {
		return nil, apperrors.NewBadRequest("expiration_date must be a date in YYYY-MM-DD format")
	}
	date := reminders.CalendarDate(parsed)
	return &date, nil
}
