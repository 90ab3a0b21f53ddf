package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/handlers"
	"github.com/charlesng35/jasamarket/internal/middleware"
	"github.com/charlesng35/jasamarket/internal/models"
)

func registerAdminRoutes(api *gin.RouterGroup, handler *handlers.AdminVerificationHandler) {
	admin := api.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))

	verifications := admin.Group("/verifications")
	{
		verifications.GET("", handler.List)
		verifications.GET("/:id", handler.Get)
		verifications.GET("/:id/history", handler.History)
		verifications.POST("/:id/approve", handler.Approve)
		verifications.POST("/:id/reject", handler.Reject)
	}
}
