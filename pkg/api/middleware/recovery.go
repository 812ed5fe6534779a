package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
)

// Recovery panic恢复中间件
func Recovery(logger watermill.LoggerAdapter) gin.HandlerFunc {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[Recovery] panic recovered", fmt.Errorf("%v", r), watermill.LogFields{
					"path":  c.Request.URL.Path,
					"stack": string(debug.Stack()),
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(
					500,
					"Internal Server Error",
				))
			}
		}()
		c.Next()
	}
}
