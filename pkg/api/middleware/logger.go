package middleware

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
)

// Logger 请求日志中间件
func Logger(logger watermill.LoggerAdapter) gin.HandlerFunc {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := watermill.LogFields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			logger.Info("请求失败: "+c.Errors.String(), fields)
			return
		}
		logger.Debug("请求完成", fields)
	}
}
