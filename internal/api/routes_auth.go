package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, handler *handlers.AuthHandler) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.Refresh)

		auth.GET("/me", requireAuth, handler.Me)
		auth.POST("/logout", requireAuth, handler.Logout)
	}
}
