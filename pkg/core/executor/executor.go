package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/metrics"
)

var tracer = otel.Tracer("github.com/LENAX/async-actions/pkg/core/executor")

const (
	maxGlobalWorkers = 1000 // 全局最大并发数上限
	defaultWorkers   = 10
)

// ErrShutdown 执行器已关闭
var ErrShutdown = errors.New("执行器已关闭")

// AbortFunc 处理函数未被调用就结束时的清理回调
type AbortFunc func(ctx context.Context, req *Request)

// Submitter 工作流提交接口（对外导出）
type Submitter interface {
	Submit(ctx context.Context, node canvas.Node) (*AsyncResult, error)
}

// Executor 进程内工作流执行器（对外导出）
// Worker 池只限制处理函数的并发，重试等待期间不占用 Worker
type Executor struct {
	registry   *Registry
	reporter   StatusReporter
	logger     watermill.LoggerAdapter
	workerPool chan struct{}
	abort      AbortFunc

	mu       sync.RWMutex
	running  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	nowFunc  func() time.Time
	sleepFor func(ctx context.Context, d time.Duration) error
}

// NewExecutor 创建执行器实例（对外导出）
func NewExecutor(registry *Registry, reporter StatusReporter, maxWorkers int, logger watermill.LoggerAdapter) (*Executor, error) {
	if maxWorkers <= 0 {
		maxWorkers = defaultWorkers
	}
	if maxWorkers > maxGlobalWorkers {
		return nil, fmt.Errorf("最大并发数不能超过 %d", maxGlobalWorkers)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if reporter == nil {
		reporter = ReporterFunc(func(context.Context, *state.StatusEvent) error { return nil })
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		registry:   registry,
		reporter:   reporter,
		logger:     logger,
		workerPool: make(chan struct{}, maxWorkers),
		running:    true,
		baseCtx:    ctx,
		cancel:     cancel,
		nowFunc:    time.Now,
		sleepFor:   sleep,
	}, nil
}

// Registry 返回处理函数注册表
func (e *Executor) Registry() *Registry {
	return e.registry
}

// OnAbort 设置中止回调，需在提交工作流之前调用
func (e *Executor) OnAbort(fn AbortFunc) {
	e.abort = fn
}

// Shutdown 关闭执行器，取消重试等待并等待运行中的工作流结束（对外导出）
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("✅ 执行器已关闭", nil)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待工作流结束超时: %w", ctx.Err())
	}
}

// Submit 提交工作流，立即返回异步结果（对外导出）
// 所有叶子必须已分配ID且处理函数已注册
func (e *Executor) Submit(ctx context.Context, node canvas.Node) (*AsyncResult, error) {
	if node == nil {
		return nil, fmt.Errorf("工作流不能为空")
	}
	if err := e.validate(node); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running {
		return nil, ErrShutdown
	}

	id := node.NodeID()
	if id == "" {
		id = uuid.NewString()
	}
	leaves := canvas.Leaves(node)
	taskIDs := make([]string, len(leaves))
	for i, s := range leaves {
		taskIDs[i] = s.ID
	}
	result := newAsyncResult(id, taskIDs)

	_, span := tracer.Start(ctx, "executor.Submit", trace.WithAttributes(
		attribute.String("async_actions.result_id", id),
		attribute.Int("async_actions.leaf_count", len(leaves)),
	))
	defer span.End()

	// 执行不跟随调用方取消，只跟随执行器关闭
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(e.baseCtx, cancel)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer stop()
		defer cancel()
		r := e.runNode(runCtx, node, input{}, result)
		result.finish(r.value, r.err())
	}()
	return result, nil
}

func (e *Executor) validate(node canvas.Node) error {
	var check func(s *canvas.Step) error
	check = func(s *canvas.Step) error {
		if s.ID == "" {
			return fmt.Errorf("任务 %s 缺少ID", s.Name)
		}
		if _, ok := e.registry.Get(s.Name); !ok {
			return fmt.Errorf("任务 %s 未注册", s.Name)
		}
		for _, eb := range s.OnError {
			if err := check(eb); err != nil {
				return err
			}
		}
		return nil
	}
	var err error
	canvas.Walk(node, func(n canvas.Node) bool {
		if err != nil {
			return false
		}
		switch x := n.(type) {
		case *canvas.Step:
			err = check(x)
		case *canvas.Sequence:
			for _, eb := range x.OnError {
				if err = check(eb); err != nil {
					break
				}
			}
		}
		return err == nil
	})
	return err
}

// input 节点的输入
type input struct {
	parent        any
	parentResults []any
	failure       *Failure
}

// nodeResult 节点执行结果
type nodeResult struct {
	value   any
	failure *Failure
	errs    []error
}

func (r nodeResult) ok() bool { return r.failure == nil }

func (r nodeResult) err() error {
	if r.failure == nil {
		return nil
	}
	if len(r.errs) > 1 {
		return errors.Join(r.errs...)
	}
	return r.failure
}

func (e *Executor) runNode(ctx context.Context, n canvas.Node, in input, result *AsyncResult) nodeResult {
	switch x := n.(type) {
	case *canvas.Step:
		return e.runStep(ctx, x, in, result)
	case *canvas.Sequence:
		return e.runSequence(ctx, x, in, result)
	case *canvas.Parallel:
		return e.runParallel(ctx, x.Tasks, in, result)
	case *canvas.ForkJoin:
		return e.runForkJoin(ctx, x, in, result)
	default:
		return nodeResult{failure: &Failure{Err: fmt.Errorf("未知的节点类型: %T", n)}}
	}
}

func (e *Executor) runSequence(ctx context.Context, seq *canvas.Sequence, in input, result *AsyncResult) nodeResult {
	prev := in
	var last nodeResult
	for i, t := range seq.Tasks {
		last = e.runNode(ctx, t, prev, result)
		if !last.ok() {
			// 后续节点不再执行
			for _, rest := range seq.Tasks[i+1:] {
				e.revoke(ctx, rest, result)
			}
			e.runErrbacks(ctx, seq.OnError, last.failure, result)
			return last
		}
		prev = input{parent: last.value}
		if values, ok := last.value.([]any); ok && canvas.IsComposite(t) {
			prev.parentResults = values
		}
	}
	return last
}

func (e *Executor) runParallel(ctx context.Context, tasks []canvas.Node, in input, result *AsyncResult) nodeResult {
	results := make([]nodeResult, len(tasks))
	// 分支之间互不取消
	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = e.runNode(ctx, t, in, result)
			return nil
		})
	}
	_ = g.Wait()

	values := make([]any, len(tasks))
	out := nodeResult{}
	for i, r := range results {
		if r.ok() {
			values[i] = r.value
			continue
		}
		values[i] = r.failure
		if out.failure == nil {
			out.failure = r.failure
		}
		out.errs = append(out.errs, r.err())
	}
	out.value = values
	return out
}

func (e *Executor) runForkJoin(ctx context.Context, fj *canvas.ForkJoin, in input, result *AsyncResult) nodeResult {
	branches := e.runParallel(ctx, fj.Tasks, in, result)
	if fj.Join == nil {
		return branches
	}
	values, _ := branches.value.([]any)
	// Join 在所有分支结束后执行一次，结果即整个节点的结果
	return e.runNode(ctx, fj.Join, input{parent: values, parentResults: values}, result)
}

func (e *Executor) runStep(ctx context.Context, s *canvas.Step, in input, result *AsyncResult) nodeResult {
	handler, _ := e.registry.Get(s.Name)
	req := &Request{
		TaskID:        s.ID,
		Name:          s.Name,
		Args:          s.Args,
		Kwargs:        s.Kwargs,
		Headers:       s.Headers,
		Parent:        in.parent,
		ParentResults: in.parentResults,
		Failure:       in.failure,
	}
	for {
		e.report(ctx, s, state.StatusStarted, "", req.Retries)
		outcome, err := e.invoke(ctx, handler, req)
		if err != nil {
			// 处理函数没有执行，由中止回调清理
			if e.abort != nil {
				e.abort(context.WithoutCancel(ctx), req)
			}
			outcome = Failed(err)
		}

		switch outcome.Kind {
		case OutcomeOK:
			e.report(ctx, s, state.StatusSuccess, "", req.Retries)
			result.record(&StepResult{TaskID: s.ID, Name: s.Name, Status: state.StatusSuccess, Value: outcome.Value, Retries: req.Retries})
			return nodeResult{value: outcome.Value}

		case OutcomeRetry:
			tb := tracebackFor(s, outcome)
			e.report(ctx, s, state.StatusRetry, tb, req.Retries)
			e.logger.Debug("任务将重试", watermill.LogFields{"task_id": s.ID, "task_name": s.Name, "delay": outcome.Delay.String(), "retries": req.Retries})
			if err := e.sleepFor(ctx, outcome.Delay); err != nil {
				outcome = Failed(fmt.Errorf("等待重试时被取消: %w", err))
				break
			}
			req.Retries++
			continue
		}

		// OutcomeFailed
		tb := tracebackFor(s, outcome)
		e.report(ctx, s, state.StatusFailure, tb, req.Retries)
		failure := &Failure{TaskID: s.ID, TaskName: s.Name, Err: outcome.Err, Traceback: tb}
		result.record(&StepResult{TaskID: s.ID, Name: s.Name, Status: state.StatusFailure, Err: outcome.Err, Traceback: tb, Retries: req.Retries})
		e.logger.Error("任务执行失败", outcome.Err, watermill.LogFields{"task_id": s.ID, "task_name": s.Name})
		e.runErrbacks(ctx, s.OnError, failure, result)
		return nodeResult{failure: failure}
	}
}

// invoke 占用 Worker 执行处理函数，panic 转为失败
func (e *Executor) invoke(ctx context.Context, handler Handler, req *Request) (outcome Outcome, err error) {
	select {
	case e.workerPool <- struct{}{}:
	case <-ctx.Done():
		return Outcome{}, fmt.Errorf("等待Worker时被取消: %w", ctx.Err())
	}
	metrics.RunningTasksGauge.Inc()
	defer func() {
		metrics.RunningTasksGauge.Dec()
		<-e.workerPool
	}()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			outcome = FailedWithTraceback(err, fmt.Sprintf("%s\n%s", debug.Stack(), err.Error()))
		}
	}()
	return handler(ctx, req), nil
}

// runErrbacks 错误回调不受执行器关闭影响
func (e *Executor) runErrbacks(ctx context.Context, errbacks []*canvas.Step, failure *Failure, result *AsyncResult) {
	ctx = context.WithoutCancel(ctx)
	for _, eb := range errbacks {
		r := e.runStep(ctx, eb, input{failure: failure}, result)
		if !r.ok() {
			e.logger.Error("错误回调执行失败", r.failure.Err, watermill.LogFields{"task_id": eb.ID, "task_name": eb.Name})
		}
	}
}

// revoke 将未执行的叶子标记为 REVOKED
func (e *Executor) revoke(ctx context.Context, n canvas.Node, result *AsyncResult) {
	for _, s := range canvas.Leaves(n) {
		e.report(ctx, s, state.StatusRevoked, "", 0)
		result.record(&StepResult{TaskID: s.ID, Name: s.Name, Status: state.StatusRevoked})
	}
}

func (e *Executor) report(ctx context.Context, s *canvas.Step, status state.Status, traceback string, retries int) {
	evt := &state.StatusEvent{
		TaskID:    s.ID,
		TaskName:  s.Name,
		Status:    status,
		Traceback: traceback,
		Retries:   retries,
		Timestamp: e.nowFunc().UTC(),
	}
	if err := e.reporter.Report(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.Error("上报任务状态失败", err, watermill.LogFields{"task_id": s.ID, "status": string(status)})
	}
}

// tracebackFor 最后一行始终是错误信息
func tracebackFor(s *canvas.Step, o Outcome) string {
	if o.Traceback != "" {
		return o.Traceback
	}
	msg := "unknown error"
	if o.Err != nil {
		msg = o.Err.Error()
	}
	return fmt.Sprintf("Traceback (most recent call last):\n  task %s[%s]\n%s", s.Name, s.ID, msg)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Submitter = (*Executor)(nil)
