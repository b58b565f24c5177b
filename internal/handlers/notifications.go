package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/doctracker/internal/middleware"
	"github.com/charlesng35/doctracker/internal/reminders"
	appErrors "github.com/charlesng35/doctracker/pkg/errors"
	"github.com/charlesng35/doctracker/pkg/response"
)

// NotificationHandler exposes the reminder engine to external schedulers and operators.
type NotificationHandler struct {
	engine *reminders.Engine
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(engine *reminders.Engine) (*NotificationHandler, error) {
	if engine == nil {
		return nil, errors.New("notification handler: engine is required")
	}
	return &NotificationHandler{engine: engine}, nil
}

type sendTestPayload struct {
	Email string `json:"email" validate:"required,email"`
}

// Get dispatches on the query string: a user preview, a delivery check, or a scheduled run.
func (h *NotificationHandler) Get(c *gin.Context) {
	if userID := strings.TrimSpace(c.Query("userId")); userID != "" {
		h.preview(c, userID)
		return
	}
	if parseBoolQuery(c, "test") {
		h.verify(c)
		return
	}
	source := reminders.SourceCron
	if trigger := strings.TrimSpace(c.Query("trigger")); trigger != "" && trigger != reminders.SourceCron {
		response.Error(c, appErrors.NewBadRequest("unsupported trigger "+trigger))
		return
	}
	h.run(c, source)
}

// Run starts a manually triggered reminder cycle.
func (h *NotificationHandler) Run(c *gin.Context) {
	h.run(c, reminders.SourceManual)
}

// SendTest delivers a one-off test message to the address in the payload.
func (h *NotificationHandler) SendTest(c *gin.Context) {
	if err := h.engine.Authorizer().Authorize(reminders.SecretFromHeader(c.Request.Header)); err != nil {
		response.Error(c, err)
		return
	}

	var payload sendTestPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	recipient := strings.TrimSpace(payload.Email)
	if err := h.engine.SendTest(requestContext(c), recipient); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sent": true, "recipient": recipient})
}

func (h *NotificationHandler) run(c *gin.Context, source string) {
	summary, err := h.engine.Run(requestContext(c), reminders.Trigger{
		Source: source,
		Secret: reminders.SecretFromHeader(c.Request.Header),
	})
	if err != nil {
		if summary.State == reminders.StateFailed {
			response.ErrorWithDetails(c, appErrors.ErrInternalServer.WithInternal(err), summary)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

func (h *NotificationHandler) verify(c *gin.Context) {
	if err := h.engine.Authorizer().Authorize(reminders.SecretFromHeader(c.Request.Header)); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.engine.VerifyDelivery(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"delivery": "ok"})
}

// preview is open to the scheduler secret and to the user the preview is about.
func (h *NotificationHandler) preview(c *gin.Context, userID string) {
	if c.GetString(middleware.CtxUserIDKey) != userID {
		if err := h.engine.Authorizer().Authorize(reminders.SecretFromHeader(c.Request.Header)); err != nil {
			response.Error(c, err)
			return
		}
	}

	preview, err := h.engine.Preview(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}
