package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/middleware"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/response"
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

// currentProfile returns the authenticated profile or writes a 401 and returns nil.
func currentProfile(c *gin.Context) *models.Profile {
	value, ok := c.Get(middleware.CtxProfileKey)
	profile, _ := value.(*models.Profile)
	if !ok || profile == nil || profile.ID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return nil
	}
	return profile
}

// currentUserID returns the authenticated user id or writes a 401 and returns "".
func currentUserID(c *gin.Context) string {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
	}
	return userID
}

func clientUserAgent(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	return c.Request.UserAgent()
}
