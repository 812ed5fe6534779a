package messages

import (
	"github.com/LENAX/async-actions/pkg/core/state"
)

// 消息处理阶段标签
const (
	StatusTagWaiting = "task-waiting"
	StatusTagRunning = "task-running"
	StatusTagReady   = "task-ready"
)

// Message 渲染后的任务状态消息（对外导出）
type Message struct {
	TaskID    string      `json:"task_id"`
	Level     state.Level `json:"level"`
	StatusTag string      `json:"status_tag"`
	HTML      string      `json:"html"`
	Checksum  string      `json:"checksum"`
}

// LevelFor FAILURE/REVOKED 为 ERROR，其余为 INFO
func LevelFor(s state.Status) state.Level {
	if s.IsPropagating() {
		return state.LevelError
	}
	return state.LevelInfo
}

// StatusTagFor 根据状态返回处理阶段标签
func StatusTagFor(s state.Status) string {
	switch {
	case s == state.StatusPending:
		return StatusTagWaiting
	case s.IsUnready():
		return StatusTagRunning
	default:
		return StatusTagReady
	}
}
