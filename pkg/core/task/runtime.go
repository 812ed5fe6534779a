package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/storage"
)

// Runtime 任务运行时包装器（对外导出）
// 负责加载状态、按请求头获取/释放锁、在锁冲突时安排重试
type Runtime struct {
	store   storage.TaskStateRepository
	locks   *lock.Manager
	targets *target.Registry
	logger  watermill.LoggerAdapter
	retry   RetryPolicy

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRuntime 创建运行时，retry 为零值时使用 DefaultRetryPolicy
func NewRuntime(store storage.TaskStateRepository, locks *lock.Manager, targets *target.Registry, retry RetryPolicy, logger watermill.LoggerAdapter) *Runtime {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if retry.IsZero() {
		retry = DefaultRetryPolicy()
	}
	if targets == nil {
		targets = target.NewRegistry()
	}
	return &Runtime{
		store:   store,
		locks:   locks,
		targets: targets,
		logger:  logger,
		retry:   retry,
		defs:    make(map[string]*Definition),
	}
}

// RetryPolicy 默认锁冲突重试策略
func (r *Runtime) RetryPolicy() RetryPolicy {
	return r.retry
}

// Definition 查询任务定义
func (r *Runtime) Definition(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Register 注册任务定义并把包装后的处理函数注册到执行器
func (r *Runtime) Register(reg *executor.Registry, defs ...*Definition) error {
	for _, def := range defs {
		if def == nil || def.Func == nil {
			return fmt.Errorf("任务定义或函数不能为空")
		}
		if err := reg.Register(def.Name, r.Wrap(def)); err != nil {
			return err
		}
		r.mu.Lock()
		r.defs[def.Name] = def
		r.mu.Unlock()
	}
	return nil
}

// Wrap 将任务定义包装为执行器处理函数（对外导出）
func (r *Runtime) Wrap(def *Definition) executor.Handler {
	return func(ctx context.Context, req *executor.Request) executor.Outcome {
		return r.run(ctx, def, req)
	}
}

func (r *Runtime) policyFor(def *Definition) RetryPolicy {
	if def.LockRetry.IsZero() {
		return r.retry
	}
	return def.LockRetry
}

func (r *Runtime) run(ctx context.Context, def *Definition, req *executor.Request) executor.Outcome {
	st, err := r.loadState(ctx, req)
	if err != nil {
		r.Abort(ctx, req)
		return executor.Failed(fmt.Errorf("加载任务状态失败: %w", err))
	}

	lockIDs := LockIDs(req.Headers)
	if len(lockIDs) > 0 && !LocksHeld(req.Headers) {
		if _, err := r.locks.Acquire(ctx, lockIDs...); err != nil {
			return r.retryOnOccupied(r.policyFor(def), req, err)
		}
	}

	tc := newTaskContext(ctx, r, req, st)
	value, err := callFunc(def.Func, tc)
	outcome := executor.Ok(value)
	if err != nil {
		var tb tracebackError
		if errors.As(err, &tb) {
			outcome = executor.FailedWithTraceback(err, tb.traceback)
		} else {
			outcome = executor.Failed(err)
		}
	}

	// 终态时释放本次调用持有的锁（获取的或继承的）
	if len(lockIDs) > 0 {
		if rerr := r.locks.Release(context.WithoutCancel(ctx), lockIDs...); rerr != nil {
			r.logger.Error("任务结束时释放锁失败", rerr, watermill.LogFields{"task_id": req.TaskID, "lock_ids": lockIDs})
			if outcome.Kind == executor.OutcomeOK {
				return executor.Failed(fmt.Errorf("释放锁失败: %w", rerr))
			}
			outcome.Err = errors.Join(outcome.Err, rerr)
		}
	}
	return outcome
}

// loadState 加载任务状态
// 错误回调没有自己的状态记录，使用失败任务的记录
func (r *Runtime) loadState(ctx context.Context, req *executor.Request) (*state.TaskState, error) {
	st, err := r.store.GetTaskState(ctx, req.TaskID)
	if err == nil || req.Failure == nil || req.Failure.TaskID == "" || !errors.Is(err, state.ErrTaskStateNotFound) {
		return st, err
	}
	return r.store.GetTaskState(ctx, req.Failure.TaskID)
}

// Abort 处理函数未能正常执行时释放提交方已获取的锁（对外导出）
// 由执行器在任务被取消、未进入处理函数时调用
func (r *Runtime) Abort(ctx context.Context, req *executor.Request) {
	lockIDs := LockIDs(req.Headers)
	if len(lockIDs) == 0 || !LocksHeld(req.Headers) {
		return
	}
	if err := r.locks.Release(context.WithoutCancel(ctx), lockIDs...); err != nil {
		r.logger.Error("任务中止时释放锁失败", err, watermill.LogFields{"task_id": req.TaskID, "lock_ids": lockIDs})
		return
	}
	r.logger.Info("🛑 任务中止，已释放锁", watermill.LogFields{"task_id": req.TaskID, "lock_ids": lockIDs})
}

// retryOnOccupied 锁冲突时安排重试，超过次数后终态失败
func (r *Runtime) retryOnOccupied(policy RetryPolicy, req *executor.Request, err error) executor.Outcome {
	if !lock.IsOccupied(err) {
		return executor.Failed(err)
	}
	if policy.Exhausted(req.Retries) {
		return executor.Failed(&RetryExhaustedError{TaskID: req.TaskID, Retries: req.Retries, Err: err})
	}
	delay := policy.Countdown(req.Retries)
	r.logger.Debug("锁被占用，稍后重试", watermill.LogFields{"task_id": req.TaskID, "retries": req.Retries, "delay": delay.String()})
	return executor.RetryAfter(delay, err)
}

// tracebackError 携带调用栈的 panic 错误
type tracebackError struct {
	err       error
	traceback string
}

func (e tracebackError) Error() string { return e.err.Error() }
func (e tracebackError) Unwrap() error { return e.err }

// callFunc 执行业务函数，panic 转为错误
func callFunc(fn Func, tc *TaskContext) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			perr := fmt.Errorf("panic: %v", rec)
			err = tracebackError{err: perr, traceback: fmt.Sprintf("%s\n%s", debug.Stack(), perr.Error())}
		}
	}()
	return fn(tc)
}
