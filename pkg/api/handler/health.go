package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/engine"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	engine    *engine.Engine
	version   string
	startTime time.Time
}

// NewHealthHandler 创建HealthHandler
func NewHealthHandler(eng *engine.Engine, version string) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		version:   version,
		startTime: time.Now(),
	}
}

// Health 健康检查
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if !h.engine.IsRunning() {
		status, code = "stopped", http.StatusServiceUnavailable
	}
	c.JSON(code, dto.NewSuccessResponse(dto.HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    formatDuration(time.Since(h.startTime)),
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}
