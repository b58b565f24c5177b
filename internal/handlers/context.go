package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/doctracker/internal/middleware"
	appErrors "github.com/charlesng35/doctracker/pkg/errors"
	"github.com/charlesng35/doctracker/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user id, writing a 401 when absent.
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
