package state

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/LENAX/async-actions/pkg/metrics"
)

// ErrTaskStateNotFound 任务状态不存在
var ErrTaskStateNotFound = errors.New("任务状态不存在")

// StatusStore 状态持久化接口
type StatusStore interface {
	UpdateTaskStatus(ctx context.Context, taskID string, status Status, traceback string) error
}

// Tracker 将执行器的状态事件写入 TaskState（对外导出）
type Tracker struct {
	store  StatusStore
	logger watermill.LoggerAdapter
}

// NewTracker 创建状态跟踪器
func NewTracker(store StatusStore, logger watermill.LoggerAdapter) *Tracker {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Tracker{store: store, logger: logger}
}

// Apply 应用一个状态事件
// 仅 RETRY/FAILURE 保留 traceback，其他状态清空；
// 没有 TaskState 的任务（如加锁/释放锁控制任务）直接忽略
func (t *Tracker) Apply(ctx context.Context, e *StatusEvent) error {
	traceback := ""
	if e.Status.KeepsTraceback() {
		traceback = e.Traceback
	}
	metrics.TaskStatusCounter.WithLabelValues(string(e.Status)).Inc()
	err := t.store.UpdateTaskStatus(ctx, e.TaskID, e.Status, traceback)
	if errors.Is(err, ErrTaskStateNotFound) {
		t.logger.Trace("忽略无状态记录的任务", watermill.LogFields{"task_id": e.TaskID, "task_name": e.TaskName})
		return nil
	}
	return err
}

// Handle watermill 处理函数
// 总是返回 nil，避免坏消息被反复投递
func (t *Tracker) Handle(msg *message.Message) error {
	e, err := UnmarshalStatusEvent(msg.Payload)
	if err != nil {
		t.logger.Error("丢弃无法解析的状态事件", err, watermill.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	if err := t.Apply(msg.Context(), e); err != nil {
		t.logger.Error("更新任务状态失败", err, watermill.LogFields{
			"task_id": e.TaskID,
			"status":  string(e.Status),
		})
	}
	return nil
}

// Register 将跟踪器挂到 router 上
func (t *Tracker) Register(router *message.Router, subscriber message.Subscriber) {
	router.AddNoPublisherHandler("async_actions_status_tracker", TopicTaskStatus, subscriber, t.Handle)
}
