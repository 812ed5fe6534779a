package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/async-actions/pkg/core/engine"
)

var upgrader = websocket.Upgrader{}

// StreamHandler 任务状态实时推送
type StreamHandler struct {
	engine *engine.Engine
}

// NewStreamHandler 创建StreamHandler
func NewStreamHandler(eng *engine.Engine) *StreamHandler {
	return &StreamHandler{engine: eng}
}

// Tasks 通过 WebSocket 推送状态事件，可用 task_id 参数过滤（可重复）
// GET /ws/tasks
func (h *StreamHandler) Tasks(c *gin.Context) {
	filter := make(map[string]struct{})
	for _, id := range c.QueryArray("task_id") {
		filter[id] = struct{}{}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events, err := h.engine.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}

	// 读循环只用于感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if len(filter) > 0 {
				if _, want := filter[ev.TaskID]; !want {
					continue
				}
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
