package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/handlers"
)

// Object keys are unguessable, so reads are served without authentication.
func registerStorageRoutes(r *gin.Engine, handler *handlers.StorageHandler) {
	r.GET("/storage/:bucket/*key", handler.Get)
	r.HEAD("/storage/:bucket/*key", handler.Get)
}
