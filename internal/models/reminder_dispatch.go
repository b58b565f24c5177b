package models

import "time"

// Dispatch statuses recorded in the reminder ledger.
const (
	DispatchStatusPending = "pending"
	DispatchStatusSent    = "sent"
)

// ReminderDispatch records a reminder for one document, interval and run day.
// The composite unique index makes delivery at-most-once per key.
type ReminderDispatch struct {
	BaseModel
	DocumentID     string     `gorm:"type:uuid;not null;uniqueIndex:idx_reminder_dispatch_key,priority:1" json:"document_id"`
	IntervalDays   int        `gorm:"not null;uniqueIndex:idx_reminder_dispatch_key,priority:2" json:"interval_days"`
	RunDate        time.Time  `gorm:"not null;uniqueIndex:idx_reminder_dispatch_key,priority:3" json:"run_date"`
	UserID         string     `gorm:"type:uuid;index;not null" json:"user_id"`
	RunID          string     `gorm:"size:64;index" json:"run_id"`
	ExpirationDate time.Time  `json:"expiration_date"`
	Recipient      string     `gorm:"size:320" json:"recipient"`
	Subject        string     `json:"subject"`
	Status         string     `gorm:"size:16;index" json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}
