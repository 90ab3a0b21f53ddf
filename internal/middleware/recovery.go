package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/response"
)

// Recovery turns a handler panic into the standard 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection quietly, and nothing is written when
// the handler already started the response (e.g. a streamed ID card image).
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			logger.WithModule("http").Error("panic",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
				zap.Any("error", r),
				zap.Stack("stack"),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, apperrors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.ErrNotFound.WithMessage(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}

// MethodNotAllowedHandler answers a known path hit with the wrong verb. gin only calls
// it when the engine has HandleMethodNotAllowed set.
func MethodNotAllowedHandler(c *gin.Context) {
	response.Error(c, apperrors.New("METHOD_NOT_ALLOWED",
		fmt.Sprintf("method %s not allowed on %s", c.Request.Method, c.Request.URL.Path),
		http.StatusMethodNotAllowed))
}
