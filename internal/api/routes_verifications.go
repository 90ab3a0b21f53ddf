package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/app"
	"github.com/charlesng35/jasamarket/internal/handlers"
	"github.com/charlesng35/jasamarket/internal/middleware"
)

type verificationRouteDeps struct {
	Handler   *handlers.VerificationHandler
	RateStore middleware.RateStore
	Limit     app.RateLimitConfig
}

func registerVerificationRoutes(api *gin.RouterGroup, deps verificationRouteDeps) {
	submitLimit := middleware.RateLimit(deps.RateStore, middleware.RateLimitConfig{
		Requests: deps.Limit.Requests,
		Window:   deps.Limit.Window,
		Key:      middleware.ByUser,
	})

	group := api.Group("/verifications")
	{
		group.POST("", submitLimit, deps.Handler.Submit)
		group.GET("/me", deps.Handler.Mine)
		group.GET("/me/pending", deps.Handler.Pending)
	}
}
