package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/response"
)

// AdminVerificationHandler exposes the moderation queue to administrators.
type AdminVerificationHandler struct {
	service *services.VerificationService
	audit   *services.AuditService
}

// NewAdminVerificationHandler constructs an AdminVerificationHandler. audit may be nil,
// in which case History answers 404.
func NewAdminVerificationHandler(service *services.VerificationService, audit *services.AuditService) *AdminVerificationHandler {
	return &AdminVerificationHandler{service: service, audit: audit}
}

type decisionRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type rejectRequest struct {
	Notes string `json:"notes" validate:"required,notblank,max=2000"`
}

// List handles GET /api/admin/verifications?status=&search=&page=&per_page=.
func (h *AdminVerificationHandler) List(c *gin.Context) {
	perPage := parseIntQuery(c, "per_page", 0)
	if perPage < 0 || perPage > services.MaxVerificationPageSize {
		perPage = 0
	}
	page, err := h.service.List(requestContext(c), services.ListVerificationsOptions{
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, page.Items, response.NewMeta(page.Page, page.PageSize, page.Total))
}

// Get handles GET /api/admin/verifications/:id.
func (h *AdminVerificationHandler) Get(c *gin.Context) {
	request, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// Approve handles POST /api/admin/verifications/:id/approve. The notes body is optional.
func (h *AdminVerificationHandler) Approve(c *gin.Context) {
	var req decisionRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	h.decide(c, models.VerificationApproved, req.Notes)
}

// Reject handles POST /api/admin/verifications/:id/reject.
func (h *AdminVerificationHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.decide(c, models.VerificationRejected, req.Notes)
}

func (h *AdminVerificationHandler) decide(c *gin.Context, target models.VerificationStatus, notes string) {
	admin := currentProfile(c)
	if admin == nil {
		return
	}

	result, err := h.service.Transition(requestContext(c), services.TransitionInput{
		RequestID: strings.TrimSpace(c.Param("id")),
		Target:    target,
		Notes:     notes,
		ActorID:   admin.ID,
		Actor:     admin.Email,
		IPAddress: c.ClientIP(),
		UserAgent: clientUserAgent(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// History handles GET /api/admin/verifications/:id/history and lists audit entries for the request.
func (h *AdminVerificationHandler) History(c *gin.Context) {
	if h.audit == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	request, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	page := parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := parseIntQuery(c, "per_page", 50)
	if perPage <= 0 || perPage > services.MaxVerificationPageSize {
		perPage = 50
	}
	logs, total, err := h.audit.List(requestContext(c), services.AuditListOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.AuditFilters{
			Resource:   "verification",
			ResourceID: request.ID,
		},
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(page, perPage, int(total)))
}
