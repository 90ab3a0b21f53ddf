package handlers

import (
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/response"
)

const (
	idCardField = "id_card"
	// multipartOverhead leaves room for the text fields next to the image.
	multipartOverhead int64 = 1 << 20
	// UploadProgressEvent is pushed on the verification stream while an identity card is stored.
	UploadProgressEvent = "verification.upload_progress"
)

// VerificationHandler exposes the provider-facing verification endpoints.
type VerificationHandler struct {
	service  *services.VerificationService
	hub      *realtime.Hub
	maxBytes int64
}

// NewVerificationHandler constructs a VerificationHandler. hub may be nil; maxUploadBytes
// bounds the identity card, the request body may exceed it by a small multipart allowance.
func NewVerificationHandler(service *services.VerificationService, hub *realtime.Hub, maxUploadBytes int64) *VerificationHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = services.DefaultMaxIDCardBytes
	}
	return &VerificationHandler{service: service, hub: hub, maxBytes: maxUploadBytes}
}

// Submit handles POST /api/verifications.
func (h *VerificationHandler) Submit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	header, err := c.FormFile(idCardField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			response.Error(c, services.ErrImageTooLarge)
		case stderrors.Is(err, http.ErrMissingFile):
			response.Error(c, services.ErrVerificationInvalid.WithMessage("Identity card image is required"))
		default:
			response.Error(c, errors.NewBadRequest("invalid multipart payload"))
		}
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.NewBadRequest("identity card could not be read"))
		return
	}
	defer file.Close()

	request, err := h.service.Submit(requestContext(c), services.SubmitVerificationInput{
		UserID:         userID,
		FullName:       c.PostForm("full_name"),
		WhatsAppNumber: c.PostForm("whatsapp_number"),
		Address:        addressFromForm(c),
		File:           idCardFromHeader(header, file),
		Progress:       h.progress(userID),
		IPAddress:      c.ClientIP(),
		UserAgent:      clientUserAgent(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, request)
}

// Mine handles GET /api/verifications/me and returns the caller's latest request.
func (h *VerificationHandler) Mine(c *gin.Context) {
	profile := currentProfile(c)
	if profile == nil {
		return
	}

	request, err := h.service.Status(requestContext(c), profile.ID)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"request":     request,
		"is_verified": profile.IsVerified,
		"role":        profile.Role,
	})
}

// Pending handles GET /api/verifications/me/pending. A lookup failure answers
// has_pending=false with degraded=true rather than an error.
func (h *VerificationHandler) Pending(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}

	pending, err := h.service.HasPending(requestContext(c), userID)
	if err != nil {
		logger.WithModule("verification").Warn("pending lookup failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		response.Success(c, http.StatusOK, gin.H{"has_pending": false, "degraded": true})
		return
	}

	response.Success(c, http.StatusOK, gin.H{"has_pending": pending})
}

func (h *VerificationHandler) progress(userID string) func(int) {
	if h.hub == nil {
		return nil
	}
	return func(percent int) {
		h.hub.BroadcastToUser(realtime.StreamVerification, userID, realtime.Message{
			Event: UploadProgressEvent,
			Data:  gin.H{"percent": percent},
		})
	}
}

func addressFromForm(c *gin.Context) models.Address {
	return models.Address{
		Province:    c.PostForm("province"),
		City:        c.PostForm("city"),
		District:    c.PostForm("district"),
		Village:     c.PostForm("village"),
		FullAddress: c.PostForm("full_address"),
	}
}

func idCardFromHeader(header *multipart.FileHeader, file multipart.File) services.IDCardFile {
	return services.IDCardFile{
		Name:        strings.TrimSpace(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}
}
