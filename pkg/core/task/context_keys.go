package task

import "context"

// context key类型，用于类型安全的context.Value访问
type contextKey string

const (
	// TaskContextKey TaskContext在context中的key
	TaskContextKey contextKey = "async_actions.task_context"
)

// WithTaskContext 将TaskContext添加到context中（对外导出）
func WithTaskContext(ctx context.Context, tc *TaskContext) context.Context {
	return context.WithValue(ctx, TaskContextKey, tc)
}

// FromContext 从context中获取TaskContext（对外导出）
// 供只拿到 context.Context 的下游代码写备注或读取目标
func FromContext(ctx context.Context) (*TaskContext, bool) {
	tc, ok := ctx.Value(TaskContextKey).(*TaskContext)
	return tc, ok && tc != nil
}
