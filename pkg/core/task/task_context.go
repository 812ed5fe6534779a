package task

import (
	"context"
	"fmt"

	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
)

// TaskContext 单次任务调用的上下文（对外导出）
// 每次调用新建一个，不在长期存活的对象上保存调用状态
type TaskContext struct {
	ctx      context.Context // 底层context，用于超时、取消等
	TaskID   string          // Task ID
	TaskName string          // Task名称
	State    *state.TaskState
	Request  *executor.Request
	Args     []any
	Kwargs   map[string]any

	runtime *Runtime
	target  *target.Lazy
}

func newTaskContext(ctx context.Context, rt *Runtime, req *executor.Request, st *state.TaskState) *TaskContext {
	tc := &TaskContext{
		TaskID:   req.TaskID,
		TaskName: req.Name,
		State:    st,
		Request:  req,
		Args:     req.Args,
		Kwargs:   req.Kwargs,
		runtime:  rt,
		target:   target.NewLazy(rt.targets, st.Target()),
	}
	tc.ctx = WithTaskContext(ctx, tc)
	return tc
}

// Context 返回底层context.Context（对外导出）
func (tc *TaskContext) Context() context.Context {
	return tc.ctx
}

// Done 返回一个channel，当context被取消时该channel会被关闭（对外导出）
func (tc *TaskContext) Done() <-chan struct{} {
	return tc.ctx.Done()
}

// Err 返回context的错误（对外导出）
func (tc *TaskContext) Err() error {
	return tc.ctx.Err()
}

// TargetRef 目标引用
func (tc *TaskContext) TargetRef() target.Ref {
	return tc.target.Ref()
}

// Target 加载目标记录，首次调用时才访问存储
func (tc *TaskContext) Target() (any, error) {
	return tc.target.Get(tc.ctx)
}

// Parent 顺序执行中上一个任务的返回值
func (tc *TaskContext) Parent() any {
	return tc.Request.Parent
}

// GetParam 获取关键字参数（对外导出）
// 返回: 参数值，如果不存在返回nil
func (tc *TaskContext) GetParam(key string) any {
	if tc.Kwargs == nil {
		return nil
	}
	return tc.Kwargs[key]
}

// HasParam 检查参数是否存在（对外导出）
func (tc *TaskContext) HasParam(key string) bool {
	if tc.Kwargs == nil {
		return false
	}
	_, exists := tc.Kwargs[key]
	return exists
}

// GetParamString 获取字符串参数（对外导出）
func (tc *TaskContext) GetParamString(key string) string {
	val := tc.GetParam(key)
	if val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", val)
}

// GetParamInt 获取整数参数（对外导出）
func (tc *TaskContext) GetParamInt(key string) (int, error) {
	val := tc.GetParam(key)
	if val == nil {
		return 0, fmt.Errorf("参数 %s 不存在", key)
	}

	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		var i int
		_, err := fmt.Sscanf(v, "%d", &i)
		return i, err
	default:
		return 0, fmt.Errorf("参数 %s 类型不是整数，当前类型: %T", key, val)
	}
}

// GetParamBool 获取布尔参数（对外导出）
func (tc *TaskContext) GetParamBool(key string) (bool, error) {
	val := tc.GetParam(key)
	if val == nil {
		return false, fmt.Errorf("参数 %s 不存在", key)
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return v == "true" || v == "1" || v == "yes", nil
	default:
		return false, fmt.Errorf("参数 %s 类型不是布尔值，当前类型: %T", key, val)
	}
}

// Notes 按创建顺序返回当前任务的备注
func (tc *TaskContext) Notes() ([]*state.Note, error) {
	return tc.runtime.store.ListNotes(tc.ctx, tc.State.ID)
}

// AddNote 以 info 级别追加备注，立即持久化
func (tc *TaskContext) AddNote(text string) error {
	return tc.AddNoteWithLevel(state.LevelInfo, text)
}

// AddNoteWithLevel 以指定级别追加备注，立即持久化
func (tc *TaskContext) AddNoteWithLevel(level state.Level, text string) error {
	if _, err := tc.runtime.store.AddNote(tc.ctx, tc.State.ID, level, text); err != nil {
		return fmt.Errorf("添加备注失败: %w", err)
	}
	return nil
}

// RunWith 在当前任务内执行另一个任务定义（对外导出）
// 子任务共享当前的状态记录、备注和目标，不单独持有锁
func (tc *TaskContext) RunWith(def *Definition) (any, error) {
	if def == nil || def.Func == nil {
		return nil, fmt.Errorf("任务定义不能为空")
	}
	return callFunc(def.Func, tc)
}
