package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/models"
	"github.com/charlesng35/doctracker/internal/reminders"
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
)

// DocumentService manages CRUD operations for documents owned by a user.
// Every call is scoped to the owner; other users' documents read as not found.
type DocumentService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDocumentService constructs a document service once a database handle is supplied.
func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	if db == nil {
		return nil, errors.New("document service: db is required")
	}
	return &DocumentService{db: db, now: time.Now}, nil
}

// ListDocumentsOptions controls how documents are filtered.
type ListDocumentsOptions struct {
	// ExpiringWithinDays limits results to documents expiring between today
	// and today plus the given number of days. Zero lists everything.
	ExpiringWithinDays int
}

// CreateDocumentInput captures the fields accepted when creating a document.
type CreateDocumentInput struct {
	Title          string
	Type           string
	Notes          string
	ExpirationDate string
}

// UpdateDocumentInput describes mutable document fields. A nil pointer indicates no change;
// an empty ExpirationDate clears the date.
type UpdateDocumentInput struct {
	Title          *string
	Type           *string
	Notes          *string
	ExpirationDate *string
}

// List returns the user's documents ordered by expiration date, undated documents last.
func (s *DocumentService) List(ctx context.Context, userID string, opts ListDocumentsOptions) ([]models.Document, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.ExpiringWithinDays > 0 {
		today := reminders.CalendarDate(s.now().UTC())
		query = query.Where("expiration_date >= ? AND expiration_date <= ?", today, today.AddDate(0, 0, opts.ExpiringWithinDays))
	}

	var docs []models.Document
	err := query.
		Order("CASE WHEN expiration_date IS NULL THEN 1 ELSE 0 END").
		Order("expiration_date ASC").
		Order("LOWER(title) ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("document service: list documents: %w", err)
	}
	return docs, nil
}

// Get returns a single document owned by userID.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	ctx = ensureContext(ctx)

	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(id), strings.TrimSpace(userID)).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("document service: load document: %w", err)
	}
	return &doc, nil
}

// Create persists a new document for userID.
func (s *DocumentService) Create(ctx context.Context, userID string, input CreateDocumentInput) (*models.Document, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	expiration, err := parseExpirationDate(input.ExpirationDate)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	doc := models.Document{
		UserID:         userID,
		Title:          title,
		Type:           strings.TrimSpace(input.Type),
		Notes:          strings.TrimSpace(input.Notes),
		ExpirationDate: expiration,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("document service: create document: %w", err)
	}
	return &doc, nil
}

// Update applies the supplied changes to a document owned by userID.
func (s *DocumentService) Update(ctx context.Context, userID, id string, input UpdateDocumentInput) (*models.Document, error) {
	ctx = ensureContext(ctx)

	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if title := trimPtr(input.Title); title != nil {
		if *title == "" {
			return nil, apperrors.NewBadRequest("title cannot be empty")
		}
		updates["title"] = *title
	}
	if docType := trimPtr(input.Type); docType != nil {
		updates["type"] = *docType
	}
	if notes := trimPtr(input.Notes); notes != nil {
		updates["notes"] = *notes
	}
	if input.ExpirationDate != nil {
		expiration, err := parseExpirationDate(*input.ExpirationDate)
		if err != nil {
			return nil, err
		}
		updates["expiration_date"] = expiration
	}
	if len(updates) == 0 {
		return doc, nil
	}

	if err := s.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("document service: update document: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes a document owned by userID.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(id), strings.TrimSpace(userID)).
		Delete(&models.Document{})
	if res.Error != nil {
		return fmt.Errorf("document service: delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *DocumentService) ensureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.NewBadRequest("user id is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("document service: load user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
