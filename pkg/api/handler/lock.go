package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/engine"
	"github.com/LENAX/async-actions/pkg/core/lock"
)

// LockHandler 锁管理处理器
type LockHandler struct {
	engine *engine.Engine
}

// NewLockHandler 创建LockHandler
func NewLockHandler(eng *engine.Engine) *LockHandler {
	return &LockHandler{engine: eng}
}

// List 列出当前持有的锁
// GET /api/v1/locks
func (h *LockHandler) List(c *gin.Context) {
	locks, err := h.engine.Locks().List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询锁失败: %v", err)
		return
	}
	items := make([]dto.LockSummary, 0, len(locks))
	for _, l := range locks {
		items = append(items, dto.LockSummary{Checksum: l.Checksum, CreatedAt: l.CreatedTime})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.LockSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Release 手动释放残留的锁
// DELETE /api/v1/locks/:checksum
func (h *LockHandler) Release(c *gin.Context) {
	checksum := c.Param("checksum")
	err := h.engine.Locks().Release(c.Request.Context(), checksum)
	if lock.IsNotFound(err) {
		respondError(c, http.StatusNotFound, "锁不存在: %s", checksum)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "释放锁失败: %v", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"released": checksum}))
}
