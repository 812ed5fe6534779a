package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/action"
	"github.com/LENAX/async-actions/pkg/core/engine"
	"github.com/LENAX/async-actions/pkg/core/target"
)

// ActionHandler 批量操作处理器
type ActionHandler struct {
	engine *engine.Engine
}

// NewActionHandler 创建ActionHandler
func NewActionHandler(eng *engine.Engine) *ActionHandler {
	return &ActionHandler{engine: eng}
}

// List 列出已注册的操作
// GET /api/v1/actions
func (h *ActionHandler) List(c *gin.Context) {
	actions := h.engine.Actions().List()
	rt := h.engine.Runtime()
	items := make([]dto.ActionSummary, 0, len(actions))
	for _, a := range actions {
		mode := string(a.LockMode)
		if mode == "" {
			mode = "auto"
		}
		items = append(items, dto.ActionSummary{
			Name:        a.Name,
			VerboseName: a.VerboseName,
			Description: a.Description,
			LockMode:    mode,
			Permissions: a.Permissions,
			Required:    a.Required,
			Workflow:    a.Template().String(),

			WorkflowName:        rt.NodeVerboseName(a.Template()),
			WorkflowDescription: rt.NodeDescription(a.Template()),
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ActionSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Run 对一批目标运行操作
// POST /api/v1/actions/:name/run
func (h *ActionHandler) Run(c *gin.Context) {
	name := c.Param("name")
	a, ok := h.engine.Actions().Get(name)
	if !ok {
		respondError(c, http.StatusNotFound, "操作不存在: %s", name)
		return
	}

	var req dto.RunActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}
	if !a.Allowed(req.Permissions) {
		respondError(c, http.StatusForbidden, "没有运行操作 %s 的权限", name)
		return
	}

	refs := make([]target.Ref, 0, len(req.Targets))
	for _, t := range req.Targets {
		ref, err := target.ParseRef(t.Type, t.ID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "目标参数错误: %v", err)
			return
		}
		refs = append(refs, ref)
	}

	report, err := h.engine.RunAction(c.Request.Context(), name, refs, req.Params)
	switch {
	case errors.Is(err, action.ErrMissingParam):
		respondError(c, http.StatusBadRequest, "%v", err)
		return
	case errors.Is(err, engine.ErrNotRunning):
		respondError(c, http.StatusServiceUnavailable, "%v", err)
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "运行操作失败: %v", err)
		return
	}

	resp := dto.RunActionResponse{
		TaskIDs:   []string{},
		Submitted: refStrings(report.Submitted),
		Locked:    refStrings(report.Locked),
		Messages:  make([]dto.TaskMessage, 0, len(report.Messages)),
	}
	if report.Result != nil {
		resp.ResultID = report.Result.ID
		resp.TaskIDs = report.Result.TaskIDs
	}
	for _, m := range report.Messages {
		resp.Messages = append(resp.Messages, dto.TaskMessage{TaskID: m.TaskID, MessageDetail: toMessageDetail(m)})
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(resp))
}

func refStrings(objs []target.Object) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.TargetRef().String())
	}
	return out
}
