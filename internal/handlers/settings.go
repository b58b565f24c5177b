package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/services"
	"github.com/charlesng35/doctracker/pkg/response"
)

// SettingsHandler manages the caller's notification preferences.
type SettingsHandler struct {
	svc *services.NotificationSettingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) (*SettingsHandler, error) {
	svc, err := services.NewNotificationSettingsService(db)
	if err != nil {
		return nil, err
	}
	return &SettingsHandler{svc: svc}, nil
}

type updateNotificationSettingsPayload struct {
	Enabled        *bool `json:"enabled"`
	Intervals      []int `json:"intervals" validate:"omitempty,max=20,dive,gt=0"`
	ResetIntervals bool  `json:"reset_intervals"`
}

// GET /api/settings/notifications
func (h *SettingsHandler) GetNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	settings, err := h.svc.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// PUT /api/settings/notifications
func (h *SettingsHandler) UpdateNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload updateNotificationSettingsPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	settings, err := h.svc.Update(requestContext(c), userID, services.UpdateNotificationSettingsInput{
		Enabled:        payload.Enabled,
		Intervals:      payload.Intervals,
		ResetIntervals: payload.ResetIntervals,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}
