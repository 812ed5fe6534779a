package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/engine"
)

// MessageHandler 任务消息轮询处理器
type MessageHandler struct {
	engine *engine.Engine
}

// NewMessageHandler 创建MessageHandler
func NewMessageHandler(eng *engine.Engine) *MessageHandler {
	return &MessageHandler{engine: eng}
}

// Get 只返回发生变化的消息
// GET /async_actions/messages/get?msgs={"<task_id>":{"msg_id":"..","checksum":".."}}
// 响应为 {"<msg_id>": "<html>"}
func (h *MessageHandler) Get(c *gin.Context) {
	raw := c.Query("msgs")
	if raw == "" {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	var entries map[string]dto.MessagePollEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		respondError(c, http.StatusBadRequest, "msgs 参数格式错误: %v", err)
		return
	}

	seen := make(map[string]string, len(entries))
	for taskID, e := range entries {
		seen[taskID] = e.Checksum
	}
	changed, err := h.engine.Messages().Reconcile(c.Request.Context(), seen)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "刷新消息失败: %v", err)
		return
	}

	out := make(map[string]string, len(changed))
	for taskID, msg := range changed {
		msgID := entries[taskID].MsgID
		if msgID == "" {
			msgID = taskID
		}
		out[msgID] = msg.HTML
	}
	c.JSON(http.StatusOK, out)
}
