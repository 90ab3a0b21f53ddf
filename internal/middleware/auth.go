package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/jasamarket/internal/auditctx"
	iauth "github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/models"
	apperrors "github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxProfileKey   = "profile"
)

// accessTokenQueryParam carries the token for WebSocket upgrades, which cannot set headers.
const accessTokenQueryParam = "access_token"

// CurrentUserResolver resolves the profile behind an access token. auth.SessionManager satisfies it.
type CurrentUserResolver interface {
	CurrentUser(ctx context.Context, accessToken string) (*models.Profile, *iauth.Claims, error)
}

// Auth authenticates the request and stores the caller's profile in the context.
func Auth(resolver CurrentUserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		profile, claims, err := resolver.CurrentUser(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, iauth.ErrUnauthenticated) {
				logger.WithModule("http").Error("resolve current user", zap.Error(err))
				response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
				c.Abort()
				return
			}
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, profile.ID)
		c.Set(CtxProfileKey, profile)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    profile.ID,
			Email:     profile.Email,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))

		c.Next()
	}
}

// RequireRole rejects callers whose profile role is not one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		value, ok := c.Get(CtxProfileKey)
		profile, _ := value.(*models.Profile)
		if !ok || profile == nil {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[profile.Role]; !ok {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return strings.TrimSpace(c.Query(accessTokenQueryParam))
	}
	return ""
}
