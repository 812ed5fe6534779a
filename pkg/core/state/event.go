package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// TopicTaskStatus 任务状态事件主题
const TopicTaskStatus = "async_actions.task_status"

// StatusEvent 执行器发布的任务状态事件（对外导出）
type StatusEvent struct {
	TaskID    string    `json:"task_id"`
	TaskName  string    `json:"task_name"`
	Status    Status    `json:"status"`
	Traceback string    `json:"traceback,omitempty"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`
}

// Marshal 序列化为JSON
func (e *StatusEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalStatusEvent 反序列化状态事件
func UnmarshalStatusEvent(payload []byte) (*StatusEvent, error) {
	var e StatusEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("解析状态事件失败: %w", err)
	}
	if !e.Status.IsValid() {
		return nil, fmt.Errorf("非法的任务状态: %q", e.Status)
	}
	return &e, nil
}
