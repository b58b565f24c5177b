package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/doctracker/internal/models"
	"github.com/charlesng35/doctracker/internal/reminders"
	"github.com/charlesng35/doctracker/pkg/response"
	"github.com/charlesng35/doctracker/pkg/validator"
)

// HistoryHandler lists reminders already delivered to the caller.
type HistoryHandler struct {
	store *reminders.SQLStore
}

// NewHistoryHandler constructs a HistoryHandler.
func NewHistoryHandler(store *reminders.SQLStore) (*HistoryHandler, error) {
	if store == nil {
		return nil, errors.New("history handler: store is required")
	}
	return &HistoryHandler{store: store}, nil
}

type dispatchDTO struct {
	DocumentID     string     `json:"document_id"`
	Interval       int        `json:"interval"`
	RunDate        string     `json:"run_date"`
	ExpirationDate string     `json:"expiration_date"`
	Recipient      string     `json:"recipient"`
	Subject        string     `json:"subject"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

// GET /api/reminders/history?limit=50
func (h *HistoryHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	entries, err := h.store.History(requestContext(c), userID, parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dispatchDTO, 0, len(entries))
	for i := range entries {
		out = append(out, toDispatchDTO(&entries[i]))
	}
	response.Success(c, http.StatusOK, out)
}

func toDispatchDTO(entry *models.ReminderDispatch) dispatchDTO {
	return dispatchDTO{
		DocumentID:     entry.DocumentID,
		Interval:       entry.IntervalDays,
		RunDate:        entry.RunDate.UTC().Format(validator.CalendarDateLayout),
		ExpirationDate: entry.ExpirationDate.UTC().Format(validator.CalendarDateLayout),
		Recipient:      entry.Recipient,
		Subject:        entry.Subject,
		SentAt:         entry.SentAt,
	}
}
