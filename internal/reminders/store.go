package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/database"
	"github.com/charlesng35/doctracker/internal/models"
)

// Candidate is a document with an expiration date inside the look-ahead window.
type Candidate struct {
	DocumentID     string    `json:"document_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Type           string    `json:"type,omitempty"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// Claim identifies a ledger row reserved for one dispatch.
type Claim struct {
	ID string
}

// SQLStore implements candidate loading, policy resolution and the dispatch
// ledger on top of gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore constructs a SQLStore.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("reminders: db is required")
	}
	return &SQLStore{db: db}, nil
}

// LoadCandidates returns documents whose expiration date lies in [from, to].
func (s *SQLStore) LoadCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("expiration_date IS NOT NULL AND expiration_date >= ? AND expiration_date <= ?", CalendarDate(from), CalendarDate(to)).
		Order("expiration_date ASC, id ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("reminders: load candidates: %w", err)
	}
	return toCandidates(docs), nil
}

// LoadUserDocuments returns a user's documents expiring on or after from.
func (s *SQLStore) LoadUserDocuments(ctx context.Context, userID string, from time.Time) ([]Candidate, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND expiration_date IS NOT NULL AND expiration_date >= ?", userID, CalendarDate(from)).
		Order("expiration_date ASC, id ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("reminders: load user documents: %w", err)
	}
	return toCandidates(docs), nil
}

// Resolve loads the user profile and derives its notification policy.
func (s *SQLStore) Resolve(ctx context.Context, userID string) (Policy, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Policy{}, ErrUserUnresolvable
	}
	if err != nil {
		return Policy{}, fmt.Errorf("reminders: resolve user %s: %w", userID, err)
	}
	return PolicyFromUser(user)
}

// LargestConfiguredInterval scans users with a custom schedule and returns the
// longest valid interval among them, or zero when none is configured.
func (s *SQLStore) LargestConfiguredInterval(ctx context.Context) (int, error) {
	largest := 0
	var batch []models.User
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "settings").
		Where("settings IS NOT NULL").
		FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
			for _, user := range batch {
				intervals, valid := parseIntervals(user.Settings[models.SettingNotificationIntervals])
				if !valid {
					continue
				}
				for _, interval := range intervals {
					if interval > largest {
						largest = interval
					}
				}
			}
			return nil
		}).Error
	if err != nil {
		return 0, fmt.Errorf("reminders: scan intervals: %w", err)
	}
	return largest, nil
}

// Claim reserves the ledger key for a notification. It reports false when the
// key is already taken by an earlier or concurrent dispatch.
func (s *SQLStore) Claim(ctx context.Context, runID string, runDate time.Time, n Notification) (Claim, bool, error) {
	entry := models.ReminderDispatch{
		DocumentID:     n.DocumentID,
		IntervalDays:   n.Interval,
		RunDate:        CalendarDate(runDate),
		UserID:         n.UserID,
		RunID:          runID,
		ExpirationDate: CalendarDate(n.ExpirationDate),
		Recipient:      n.Recipient,
		Subject:        n.Subject,
		Status:         models.DispatchStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return Claim{}, false, nil
		}
		return Claim{}, false, fmt.Errorf("reminders: claim dispatch: %w", err)
	}
	return Claim{ID: entry.ID}, true, nil
}

// MarkSent records a successful delivery for the claim.
func (s *SQLStore) MarkSent(ctx context.Context, claim Claim, sentAt time.Time) error {
	sentAt = sentAt.UTC()
	err := s.db.WithContext(ctx).
		Model(&models.ReminderDispatch{}).
		Where("id = ?", claim.ID).
		Updates(map[string]any{"status": models.DispatchStatusSent, "sent_at": &sentAt}).Error
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	return nil
}

// Release drops a claim after a failed delivery so a later run may retry it.
func (s *SQLStore) Release(ctx context.Context, claim Claim) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", claim.ID, models.DispatchStatusPending).
		Delete(&models.ReminderDispatch{}).Error
	if err != nil {
		return fmt.Errorf("reminders: release claim: %w", err)
	}
	return nil
}

// History lists recent ledger entries for a user, newest first.
func (s *SQLStore) History(ctx context.Context, userID string, limit int) ([]models.ReminderDispatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.ReminderDispatch
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.DispatchStatusSent).
		Order("run_date DESC, created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("reminders: history: %w", err)
	}
	return entries, nil
}

// PurgeDispatches removes ledger rows for run dates before cutoff.
func (s *SQLStore) PurgeDispatches(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("run_date < ?", CalendarDate(cutoff)).
		Delete(&models.ReminderDispatch{})
	if res.Error != nil {
		return 0, fmt.Errorf("reminders: purge dispatches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecordRun persists the summary of a finished run.
func (s *SQLStore) RecordRun(ctx context.Context, summary Summary) error {
	return database.StoreSystemSettingJSON(ctx, s.db, database.LastReminderRunSetting, summary)
}

// LastRun returns the most recently recorded run summary.
func (s *SQLStore) LastRun(ctx context.Context) (Summary, bool, error) {
	var summary Summary
	found, err := database.LoadSystemSettingJSON(ctx, s.db, database.LastReminderRunSetting, &summary)
	return summary, found, err
}

func toCandidates(docs []models.Document) []Candidate {
	out := make([]Candidate, 0, len(docs))
	for _, doc := range docs {
		if doc.ExpirationDate == nil {
			continue
		}
		out = append(out, Candidate{
			DocumentID:     doc.ID,
			UserID:         doc.UserID,
			Title:          doc.Title,
			Type:           doc.Type,
			ExpirationDate: CalendarDate(doc.ExpirationDate.UTC()),
		})
	}
	return out
}
