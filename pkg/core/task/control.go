package task

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/lock"
)

// 内部控制任务名
const (
	AcquireLocksTaskName        = "async_actions.acquire_locks"
	ReleaseLocksTaskName        = "async_actions.release_locks"
	ReleaseLocksOnErrorTaskName = "async_actions.release_locks_on_error"
)

// AcquireLocksStep 外层加锁任务
func AcquireLocksStep(ids []string) *canvas.Step {
	return controlStep(AcquireLocksTaskName, ids)
}

// ReleaseLocksStep 外层释放锁任务
func ReleaseLocksStep(ids []string) *canvas.Step {
	return controlStep(ReleaseLocksTaskName, ids)
}

// ReleaseLocksOnErrorStep 外层错误回调，工作流失败时释放锁
func ReleaseLocksOnErrorStep(ids []string) *canvas.Step {
	return controlStep(ReleaseLocksOnErrorTaskName, ids)
}

func controlStep(name string, ids []string) *canvas.Step {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	s := canvas.NewStep(name, args...)
	s.Control = true
	return s
}

func argStrings(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, fmt.Sprint(a))
	}
	return out
}

// RegisterControlTasks 注册加锁/释放锁控制任务
func (r *Runtime) RegisterControlTasks(reg *executor.Registry) error {
	handlers := map[string]executor.Handler{
		AcquireLocksTaskName:        r.acquireLocks,
		ReleaseLocksTaskName:        r.releaseLocks,
		ReleaseLocksOnErrorTaskName: r.releaseLocksOnError,
	}
	for _, name := range []string{AcquireLocksTaskName, ReleaseLocksTaskName, ReleaseLocksOnErrorTaskName} {
		if err := reg.Register(name, handlers[name]); err != nil {
			return fmt.Errorf("注册控制任务失败: %w", err)
		}
	}
	return nil
}

// acquireLocks 锁冲突时按默认策略重试
func (r *Runtime) acquireLocks(ctx context.Context, req *executor.Request) executor.Outcome {
	ids := argStrings(req.Args)
	held, err := r.locks.Acquire(ctx, ids...)
	if err != nil {
		return r.retryOnOccupied(r.retry, req, err)
	}
	return executor.Ok(held)
}

func (r *Runtime) releaseLocks(ctx context.Context, req *executor.Request) executor.Outcome {
	ids := argStrings(req.Args)
	if err := r.locks.Release(context.WithoutCancel(ctx), ids...); err != nil {
		return executor.Failed(err)
	}
	return executor.Ok(nil)
}

// releaseLocksOnError 工作流失败时释放锁
// 失败原因本身是锁冲突（含重试用尽）或锁不存在时，说明锁不归本工作流所有，跳过释放
// 加锁任务自身失败时锁没有被获取，同样跳过
func (r *Runtime) releaseLocksOnError(ctx context.Context, req *executor.Request) executor.Outcome {
	ids := argStrings(req.Args)
	if req.Failure != nil && (req.Failure.TaskName == AcquireLocksTaskName || lock.IsOccupied(req.Failure.Err) || lock.IsNotFound(req.Failure.Err)) {
		r.logger.Info("失败原因为锁冲突，跳过释放锁", watermill.LogFields{"failed_task": req.Failure.TaskID, "lock_ids": ids})
		return executor.Ok(nil)
	}
	if err := r.locks.Release(context.WithoutCancel(ctx), ids...); err != nil {
		return executor.Failed(err)
	}
	return executor.Ok(nil)
}
