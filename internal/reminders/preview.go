package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/charlesng35/doctracker/pkg/errors"
)

// UpcomingReminder is a future day on which a reminder will fire.
type UpcomingReminder struct {
	Date     string  `json:"date"`
	Interval int     `json:"interval"`
	Urgency  Urgency `json:"urgency"`
}

// DocumentPreview lists the remaining reminders for one document.
type DocumentPreview struct {
	DocumentID     string             `json:"document_id"`
	Title          string             `json:"title"`
	Type           string             `json:"type,omitempty"`
	ExpirationDate string             `json:"expiration_date"`
	DaysUntil      int                `json:"days_until"`
	DueToday       bool               `json:"due_today"`
	Urgency        Urgency            `json:"urgency"`
	Reminders      []UpcomingReminder `json:"reminders"`
}

// Preview is a read-only view of a user's reminder schedule.
type Preview struct {
	UserID               string            `json:"user_id"`
	DisplayName          string            `json:"display_name"`
	NotificationsEnabled bool              `json:"notifications_enabled"`
	Intervals            []int             `json:"intervals"`
	Today                string            `json:"today"`
	Documents            []DocumentPreview `json:"documents"`
}

// Preview computes upcoming reminder dates for userID without dispatching.
func (e *Engine) Preview(ctx context.Context, userID string) (Preview, error) {
	policy, err := e.deps.Resolver.Resolve(ctx, userID)
	if errors.Is(err, ErrUserUnresolvable) {
		return Preview{}, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return Preview{}, fmt.Errorf("reminders: preview: %w", err)
	}

	today := e.Today()
	docs, err := e.deps.Loader.LoadUserDocuments(ctx, userID, today)
	if err != nil {
		return Preview{}, fmt.Errorf("reminders: preview: %w", err)
	}

	out := Preview{
		UserID:               policy.UserID,
		DisplayName:          policy.DisplayName,
		NotificationsEnabled: policy.NotificationsEnabled,
		Intervals:            policy.Intervals,
		Today:                today.Format("2006-01-02"),
		Documents:            make([]DocumentPreview, 0, len(docs)),
	}
	for _, doc := range docs {
		out.Documents = append(out.Documents, previewDocument(doc, today, policy))
	}
	return out, nil
}

func previewDocument(doc Candidate, today time.Time, policy Policy) DocumentPreview {
	el := Evaluate(doc.ExpirationDate, today, policy.Intervals)
	preview := DocumentPreview{
		DocumentID:     doc.DocumentID,
		Title:          doc.Title,
		Type:           doc.Type,
		ExpirationDate: doc.ExpirationDate.Format("2006-01-02"),
		DaysUntil:      el.DaysUntil,
		DueToday:       el.Eligible && policy.NotificationsEnabled,
		Urgency:        UrgencyFor(el.DaysUntil),
		Reminders:      []UpcomingReminder{},
	}
	if !policy.NotificationsEnabled {
		return preview
	}

	for _, interval := range policy.Intervals {
		if interval > el.DaysUntil {
			continue
		}
		fire := CalendarDate(doc.ExpirationDate).AddDate(0, 0, -interval)
		preview.Reminders = append(preview.Reminders, UpcomingReminder{
			Date:     fire.Format("2006-01-02"),
			Interval: interval,
			Urgency:  UrgencyFor(interval),
		})
	}
	sort.Slice(preview.Reminders, func(i, j int) bool {
		return preview.Reminders[i].Date < preview.Reminders[j].Date
	})
	return preview
}
