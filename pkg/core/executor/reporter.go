package executor

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/LENAX/async-actions/pkg/core/state"
)

// StatusReporter 状态事件上报接口（对外导出）
type StatusReporter interface {
	Report(ctx context.Context, e *state.StatusEvent) error
}

// ReporterFunc 函数形式的 StatusReporter
type ReporterFunc func(ctx context.Context, e *state.StatusEvent) error

// Report implements StatusReporter.
func (f ReporterFunc) Report(ctx context.Context, e *state.StatusEvent) error {
	return f(ctx, e)
}

// WatermillReporter 将状态事件发布到 watermill 主题
type WatermillReporter struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillReporter 创建发布者，topic 为空时使用 state.TopicTaskStatus
func NewWatermillReporter(publisher message.Publisher, topic string) *WatermillReporter {
	if topic == "" {
		topic = state.TopicTaskStatus
	}
	return &WatermillReporter{publisher: publisher, topic: topic}
}

// Report implements StatusReporter.
func (r *WatermillReporter) Report(ctx context.Context, e *state.StatusEvent) error {
	payload, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("序列化状态事件失败: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("task_id", e.TaskID)
	msg.Metadata.Set("status", string(e.Status))
	if err := r.publisher.Publish(r.topic, msg); err != nil {
		return fmt.Errorf("发布状态事件失败: %w", err)
	}
	return nil
}
