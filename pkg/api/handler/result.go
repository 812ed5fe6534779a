package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/engine"
	"github.com/LENAX/async-actions/pkg/storage"
)

// ResultHandler 提交结果处理器
type ResultHandler struct {
	engine *engine.Engine
}

// NewResultHandler 创建ResultHandler
func NewResultHandler(eng *engine.Engine) *ResultHandler {
	return &ResultHandler{engine: eng}
}

// Get 查询一次提交的所有任务状态
// GET /api/v1/results/:id
func (h *ResultHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	repo := h.engine.Repository()

	gr, err := repo.GetGroupResult(ctx, c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "提交结果不存在: %s", c.Param("id"))
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询提交结果失败: %v", err)
		return
	}
	states, err := repo.ListTaskStates(ctx, gr.TaskIDs)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: %v", err)
		return
	}

	detail := dto.GroupResultDetail{
		ID:        gr.ID,
		CreatedAt: gr.CreatedTime,
		Tasks:     make([]dto.TaskStateSummary, 0, len(states)),
		Counts:    make(map[string]int),
	}
	for _, st := range states {
		detail.Tasks = append(detail.Tasks, toSummary(st))
		detail.Counts[string(st.Status)]++
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(detail))
}
