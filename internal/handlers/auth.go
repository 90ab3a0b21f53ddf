package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/middleware"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/response"
)

var (
	errEmailTaken = errors.New("EMAIL_TAKEN", "Email is already registered", http.StatusConflict)
	errLocked     = errors.New("ACCOUNT_LOCKED", "Account is temporarily locked, try again later", http.StatusLocked)
)

// AuthHandler manages authentication flows (register/login/refresh/logout/me).
type AuthHandler struct {
	sessions *iauth.SessionManager
	audit    *services.AuditService
}

// NewAuthHandler constructs an AuthHandler. audit may be nil.
func NewAuthHandler(sessions *iauth.SessionManager, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{sessions: sessions, audit: audit}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Phone    string `json:"phone" validate:"omitempty,whatsapp"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,notblank"`
}

type sessionPayload struct {
	Tokens iauth.TokenPair `json:"tokens"`
	User   *models.Profile `json:"user"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, pair, err := h.sessions.Register(requestContext(c), iauth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	}, h.metadata(c))
	if err != nil {
		if stderrors.Is(err, iauth.ErrEmailTaken) {
			response.Error(c, errEmailTaken)
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	h.record(c, profile.ID, "auth.register", services.AuditResultSuccess)
	response.Success(c, http.StatusCreated, sessionPayload{Tokens: pair, User: profile})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, pair, err := h.sessions.SignIn(requestContext(c), iauth.AuthenticateInput{
		Email:    req.Email,
		Password: req.Password,
	}, h.metadata(c))
	if err != nil {
		switch {
		case stderrors.Is(err, iauth.ErrAccountLocked):
			h.record(c, "", "auth.login", services.AuditResultDenied)
			response.Error(c, errLocked)
		case stderrors.Is(err, iauth.ErrInvalidCredentials):
			h.record(c, "", "auth.login", services.AuditResultFailure)
			response.Error(c, errors.ErrInvalidCredentials)
		default:
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	h.record(c, profile.ID, "auth.login", services.AuditResultSuccess)
	response.Success(c, http.StatusOK, sessionPayload{Tokens: pair, User: profile})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, err := h.sessions.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.SignOut(requestContext(c), userID, sessionID); err != nil {
		if stderrors.Is(err, iauth.ErrSessionNotFound) {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	h.record(c, userID, "auth.logout", services.AuditResultSuccess)
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	profile := currentProfile(c)
	if profile == nil {
		return
	}
	response.Success(c, http.StatusOK, profile)
}

func (h *AuthHandler) metadata(c *gin.Context) iauth.SessionMetadata {
	return iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: clientUserAgent(c),
	}
}

func (h *AuthHandler) record(c *gin.Context, userID, action, result string) {
	if h.audit == nil {
		return
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	if err := h.audit.Log(requestContext(c), services.AuditEntry{
		UserID:    uid,
		Action:    action,
		Resource:  "session",
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: clientUserAgent(c),
	}); err != nil {
		logger.WithModule("audit").Warn("failed to record auth event", zap.String("action", action), zap.Error(err))
	}
}
