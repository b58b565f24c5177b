package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/models"
	"github.com/charlesng35/doctracker/internal/services"
	"github.com/charlesng35/doctracker/pkg/response"
	"github.com/charlesng35/doctracker/pkg/validator"
)

// DocumentHandler exposes CRUD endpoints for the caller's documents.
type DocumentHandler struct {
	svc *services.DocumentService
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(db *gorm.DB) (*DocumentHandler, error) {
	svc, err := services.NewDocumentService(db)
	if err != nil {
		return nil, err
	}
	return &DocumentHandler{svc: svc}, nil
}

type documentDTO struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Type           string    `json:"type"`
	Notes          string    `json:"notes"`
	ExpirationDate *string   `json:"expiration_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type createDocumentPayload struct {
	Title          string `json:"title" validate:"required,max=200"`
	Type           string `json:"type" validate:"omitempty,max=64"`
	Notes          string `json:"notes" validate:"omitempty,max=2000"`
	ExpirationDate string `json:"expiration_date" validate:"omitempty,calendar_date"`
}

type updateDocumentPayload struct {
	Title          *string `json:"title" validate:"omitempty,min=1,max=200"`
	Type           *string `json:"type" validate:"omitempty,max=64"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
	ExpirationDate *string `json:"expiration_date" validate:"omitempty,calendar_date"`
}

// GET /api/documents?expiring_within=30
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	docs, err := h.svc.List(requestContext(c), userID, services.ListDocumentsOptions{
		ExpiringWithinDays: parseIntQuery(c, "expiring_within", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]documentDTO, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentDTO(&docs[i]))
	}
	response.Success(c, http.StatusOK, out)
}

// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	doc, err := h.svc.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toDocumentDTO(doc))
}

// POST /api/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload createDocumentPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	doc, err := h.svc.Create(requestContext(c), userID, services.CreateDocumentInput{
		Title:          payload.Title,
		Type:           payload.Type,
		Notes:          payload.Notes,
		ExpirationDate: payload.ExpirationDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toDocumentDTO(doc))
}

// PATCH /api/documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload updateDocumentPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	doc, err := h.svc.Update(requestContext(c), userID, c.Param("id"), services.UpdateDocumentInput{
		Title:          payload.Title,
		Type:           payload.Type,
		Notes:          payload.Notes,
		ExpirationDate: payload.ExpirationDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toDocumentDTO(doc))
}

// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func toDocumentDTO(doc *models.Document) documentDTO {
	dto := documentDTO{
		ID:        doc.ID,
		Title:     doc.Title,
		Type:      doc.Type,
		Notes:     doc.Notes,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.ExpirationDate != nil {
		formatted := doc.ExpirationDate.UTC().Format(validator.CalendarDateLayout)
		dto.ExpirationDate = &formatted
	}
	return dto
}
