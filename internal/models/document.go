package models

import "time"

// Document is a tracked personal document. ExpirationDate holds a calendar
// date stored as midnight UTC; documents without one are never reminded about.
type Document struct {
	BaseModel
	UserID         string     `gorm:"type:uuid;index;not null" json:"user_id"`
	Title          string     `gorm:"not null" json:"title"`
	Type           string     `gorm:"size:64" json:"type"`
	Notes          string     `gorm:"type:text" json:"notes"`
	ExpirationDate *time.Time `gorm:"index" json:"expiration_date"`
}
