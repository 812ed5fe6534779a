package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/engine"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
)

// TaskHandler 任务状态处理器
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建TaskHandler
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// Get 获取任务状态、备注和消息
// GET /api/v1/tasks/:task_id
func (h *TaskHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	repo := h.engine.Repository()

	st, err := repo.GetTaskState(ctx, c.Param("task_id"))
	if errors.Is(err, state.ErrTaskStateNotFound) {
		respondError(c, http.StatusNotFound, "任务不存在: %s", c.Param("task_id"))
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: %v", err)
		return
	}
	notes, err := repo.ListNotes(ctx, st.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询备注失败: %v", err)
		return
	}
	msg, err := h.engine.Messages().Build(st, notes)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "渲染消息失败: %v", err)
		return
	}

	detail := dto.TaskStateDetail{
		TaskStateSummary: toSummary(st),
		TargetType:       st.TargetType,
		TargetID:         st.TargetID,
		Traceback:        st.Traceback,
		Notes:            make([]dto.NoteDetail, 0, len(notes)),
	}
	for _, n := range notes {
		detail.Notes = append(detail.Notes, dto.NoteDetail{Level: n.Level.String(), Text: n.Text, CreatedAt: n.CreatedTime})
	}
	md := toMessageDetail(msg)
	detail.Message = &md
	c.JSON(http.StatusOK, dto.NewSuccessResponse(detail))
}

// ListByTarget 列出目标对象的任务，最新的在前
// GET /api/v1/targets/:type/:id/tasks
func (h *TaskHandler) ListByTarget(c *gin.Context) {
	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, "查询参数错误: %v", err)
		return
	}
	ref, err := target.ParseRef(c.Param("type"), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "目标参数错误: %v", err)
		return
	}

	limit := query.GetDefaultLimit()
	// 多取一条用于判断是否还有更多
	states, err := h.engine.Repository().ListTaskStatesByTarget(c.Request.Context(), ref, query.Offset+limit+1)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: %v", err)
		return
	}

	items := make([]dto.TaskStateSummary, 0, limit)
	for i := query.Offset; i < len(states) && len(items) < limit; i++ {
		items = append(items, toSummary(states[i]))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.TaskStateSummary]{
		Total:   len(items),
		Items:   items,
		HasMore: len(states) > query.Offset+limit,
	}))
}
