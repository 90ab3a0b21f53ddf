package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/app"
	"github.com/charlesng35/jasamarket/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, checks []handlers.HealthCheck) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)

		api := r.Group("/api")
		api.GET("/health", disabledHealthHandler)
		api.GET("/health/live", disabledHealthHandler)
		api.GET("/health/ready", disabledHealthHandler)
		return
	}

	handler := handlers.NewHealthHandler(checks...)

	registerHealthEndpoints(r, handler)
	registerHealthEndpoints(r.Group("/api"), handler)
}

func registerHealthEndpoints(router gin.IRouter, handler *handlers.HealthHandler) {
	router.GET("/health", handler.Ready)
	router.GET("/health/live", handler.Live)
	router.GET("/health/ready", handler.Ready)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
