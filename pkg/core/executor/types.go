package executor

import (
	"context"
	"fmt"
	"time"
)

// Request 一次任务调用的请求（对外导出）
type Request struct {
	TaskID  string
	Name    string
	Args    []any
	Kwargs  map[string]any
	Headers map[string]any
	// Retries 已重试次数，首次执行为0
	Retries int
	// Parent 顺序执行中上一个节点的返回值
	Parent any
	// ParentResults fork-join 中各分支的结果，失败分支为 *Failure
	ParentResults []any
	// Failure 错误回调收到的失败信息
	Failure *Failure
}

// Header 读取请求头
func (r *Request) Header(key string) (any, bool) {
	if r.Headers == nil {
		return nil, false
	}
	v, ok := r.Headers[key]
	return v, ok
}

// Failure 失败信息（对外导出）
type Failure struct {
	TaskID    string
	TaskName  string
	Err       error
	Traceback string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("任务 %s[%s] 失败: %v", f.TaskName, f.TaskID, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// OutcomeKind 调用结果类型
type OutcomeKind int

const (
	OutcomeOK     OutcomeKind = iota // 成功
	OutcomeRetry                     // 延迟后重试
	OutcomeFailed                    // 终态失败
)

// Outcome 任务处理函数的返回（对外导出）
type Outcome struct {
	Kind      OutcomeKind
	Value     any
	Delay     time.Duration
	Err       error
	Traceback string
}

// Ok 成功
func Ok(value any) Outcome {
	return Outcome{Kind: OutcomeOK, Value: value}
}

// RetryAfter 延迟 delay 后重试
func RetryAfter(delay time.Duration, err error) Outcome {
	return Outcome{Kind: OutcomeRetry, Delay: delay, Err: err}
}

// Failed 终态失败
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// FailedWithTraceback 终态失败并附带 traceback
func FailedWithTraceback(err error, traceback string) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err, Traceback: traceback}
}

// IsTerminal 是否为终态
func (o Outcome) IsTerminal() bool {
	return o.Kind != OutcomeRetry
}

// Handler 任务处理函数（对外导出）
type Handler func(ctx context.Context, req *Request) Outcome
