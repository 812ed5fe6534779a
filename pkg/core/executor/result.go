package executor

import (
	"context"
	"sync"

	"github.com/LENAX/async-actions/pkg/core/state"
)

// StepResult 单个叶子任务的最终结果
type StepResult struct {
	TaskID    string       `json:"task_id"`
	Name      string       `json:"name"`
	Status    state.Status `json:"status"`
	Value     any          `json:"value,omitempty"`
	Err       error        `json:"-"`
	Traceback string       `json:"traceback,omitempty"`
	Retries   int          `json:"retries"`
}

// AsyncResult 一次提交的异步结果句柄（对外导出）
type AsyncResult struct {
	ID      string
	TaskIDs []string

	done    chan struct{}
	mu      sync.RWMutex
	results map[string]*StepResult
	value   any
	err     error
}

func newAsyncResult(id string, taskIDs []string) *AsyncResult {
	return &AsyncResult{
		ID:      id,
		TaskIDs: taskIDs,
		done:    make(chan struct{}),
		results: make(map[string]*StepResult, len(taskIDs)),
	}
}

// Done 全部执行结束时关闭
func (r *AsyncResult) Done() <-chan struct{} {
	return r.done
}

// Wait 等待执行结束，返回整体错误
func (r *AsyncResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready 是否已结束
func (r *AsyncResult) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err 整体错误，未结束时为 nil
func (r *AsyncResult) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Value 根节点的返回值
func (r *AsyncResult) Value() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Get 查询单个叶子任务的结果
func (r *AsyncResult) Get(taskID string) (*StepResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[taskID]
	return res, ok
}

// Results 所有已结束叶子任务的结果
func (r *AsyncResult) Results() map[string]*StepResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*StepResult, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

func (r *AsyncResult) record(res *StepResult) {
	r.mu.Lock()
	r.results[res.TaskID] = res
	r.mu.Unlock()
}

func (r *AsyncResult) finish(value any, err error) {
	r.mu.Lock()
	r.value = value
	r.err = err
	r.mu.Unlock()
	close(r.done)
}
