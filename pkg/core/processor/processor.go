package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/core/task"
	"github.com/LENAX/async-actions/pkg/metrics"
	"github.com/LENAX/async-actions/pkg/storage"
)

var tracer = otel.Tracer("github.com/LENAX/async-actions/pkg/core/processor")

// LockMode 加锁模式（对外导出）
type LockMode string

const (
	// LockAuto 单个任务使用内层锁，组合工作流使用外层锁
	LockAuto LockMode = ""
	// LockInner 每个任务自己获取和释放锁
	LockInner LockMode = "inner"
	// LockOuter 整个工作流前后各插入一个加锁/释放锁任务
	LockOuter LockMode = "outer"
)

// ParseLockMode 解析加锁模式
func ParseLockMode(s string) (LockMode, error) {
	switch LockMode(strings.ToLower(strings.TrimSpace(s))) {
	case LockAuto, "auto":
		return LockAuto, nil
	case LockInner:
		return LockInner, nil
	case LockOuter:
		return LockOuter, nil
	default:
		return LockAuto, fmt.Errorf("未知的加锁模式: %s", s)
	}
}

// Namer 提供任务显示名称
type Namer interface {
	VerboseName(s *canvas.Step) string
}

// Deps 处理器依赖
type Deps struct {
	Locks    *lock.Manager
	States   storage.TaskStateRepository
	Results  storage.GroupResultRepository
	Executor executor.Submitter
	Namer    Namer
	Logger   watermill.LoggerAdapter
	// IDGen 为空时使用 uuid
	IDGen func() string
}

// Processor 批量操作的工作流构建器（对外导出）
// 对每个对象克隆模板、合并运行时参数、按加锁模式包装、冻结并创建 TaskState。
// 构建结果只计算一次，Run 只能提交一次
type Processor struct {
	deps        Deps
	template    canvas.Node
	objects     []target.Object
	runtimeData map[string]any
	mode        LockMode

	mu         sync.Mutex
	built      bool
	buildErr   error
	signatures []canvas.Node
	states     [][]*state.TaskState
	accepted   []target.Object
	locked     []target.Object
	// innerHeld 提交前已获取的内层锁
	innerHeld [][]string
	workflow  *canvas.Parallel
	submitted bool
}

// New 创建处理器（对外导出）
func New(deps Deps, template canvas.Node, objects []target.Object, runtimeData map[string]any, mode LockMode) *Processor {
	if deps.Logger == nil {
		deps.Logger = watermill.NopLogger{}
	}
	if deps.IDGen == nil {
		deps.IDGen = uuid.NewString
	}
	return &Processor{
		deps:        deps,
		template:    template,
		objects:     objects,
		runtimeData: runtimeData,
		mode:        mode,
	}
}

// Objects 全部输入对象
func (p *Processor) Objects() []target.Object {
	return p.objects
}

// LockedObjects 因锁冲突被跳过的对象（仅内层锁的单任务模式会出现）
func (p *Processor) LockedObjects(ctx context.Context) ([]target.Object, error) {
	if err := p.build(ctx); err != nil {
		return nil, err
	}
	return p.locked, nil
}

// AcceptedObjects 成功构建工作流的对象，与 Signatures 一一对应
func (p *Processor) AcceptedObjects(ctx context.Context) ([]target.Object, error) {
	if err := p.build(ctx); err != nil {
		return nil, err
	}
	return p.accepted, nil
}

// Signatures 每个对象的工作流
func (p *Processor) Signatures(ctx context.Context) ([]canvas.Node, error) {
	if err := p.build(ctx); err != nil {
		return nil, err
	}
	return p.signatures, nil
}

// Workflow 全部对象工作流组成的并行组
func (p *Processor) Workflow(ctx context.Context) (*canvas.Parallel, error) {
	if err := p.build(ctx); err != nil {
		return nil, err
	}
	return p.workflow, nil
}

// TaskStates 每个对象的任务状态，按提交顺序分组
func (p *Processor) TaskStates(ctx context.Context) ([][]*state.TaskState, error) {
	if err := p.build(ctx); err != nil {
		return nil, err
	}
	return p.states, nil
}

// AllTaskStates 展开的任务状态
func (p *Processor) AllTaskStates(ctx context.Context) ([]*state.TaskState, error) {
	groups, err := p.TaskStates(ctx)
	if err != nil {
		return nil, err
	}
	var out []*state.TaskState
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}

func (p *Processor) lockModeFor(n canvas.Node) LockMode {
	if p.mode != LockAuto {
		return p.mode
	}
	if canvas.IsComposite(n) {
		return LockOuter
	}
	return LockInner
}

// build 构建所有对象的工作流，只执行一次
func (p *Processor) build(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.built {
		return p.buildErr
	}
	p.built = true
	p.buildErr = p.doBuild(ctx)
	return p.buildErr
}

func (p *Processor) doBuild(ctx context.Context) error {
	if p.template == nil {
		return fmt.Errorf("工作流模板不能为空")
	}
	var allStates []*state.TaskState
	for _, obj := range p.objects {
		sig, held, err := p.buildOne(ctx, obj)
		if err != nil {
			if lock.IsOccupied(err) {
				p.locked = append(p.locked, obj)
				metrics.LockedObjectCounter.Inc()
				p.deps.Logger.Info("对象已被锁定，跳过", watermill.LogFields{"target": obj.TargetRef().String()})
				continue
			}
			p.releaseInner(ctx)
			return err
		}
		states := p.newStates(sig, obj.TargetRef())
		p.signatures = append(p.signatures, sig)
		p.accepted = append(p.accepted, obj)
		p.innerHeld = append(p.innerHeld, held)
		p.states = append(p.states, states)
		allStates = append(allStates, states...)
	}

	if err := p.deps.States.CreateTaskStates(ctx, allStates); err != nil {
		p.releaseInner(ctx)
		return fmt.Errorf("创建任务状态失败: %w", err)
	}
	wf := canvas.Group(p.signatures...)
	wf.ID = p.deps.IDGen()
	p.workflow = wf
	return nil
}

// buildOne 构建单个对象的工作流，返回提交前已获取的锁
func (p *Processor) buildOne(ctx context.Context, obj target.Object) (canvas.Node, []string, error) {
	sig := canvas.Clone(p.template)
	canvas.MergeKwargs(sig, p.runtimeData)
	ids := lock.ObjectLockIDs(obj)

	var held []string
	switch p.lockModeFor(sig) {
	case LockInner:
		if step, ok := sig.(*canvas.Step); ok {
			// 单任务：提交前同步加锁，冲突时跳过该对象
			acquired, err := p.deps.Locks.Acquire(ctx, ids...)
			if err != nil {
				return nil, nil, err
			}
			held = acquired
			task.SetLockHeaders(step, ids, true)
		} else {
			// 组合工作流：每个任务自己加锁并在冲突时重试
			for _, leaf := range canvas.TaskLeaves(sig) {
				task.SetLockHeaders(leaf, ids, false)
			}
		}
	case LockOuter:
		sig = wrapOuter(sig, ids)
	}

	canvas.Freeze(sig, p.deps.IDGen)
	if _, err := canvas.BuildDAG(sig); err != nil {
		if len(held) > 0 {
			_ = p.deps.Locks.Release(context.WithoutCancel(ctx), held...)
		}
		return nil, nil, fmt.Errorf("工作流校验失败: %w", err)
	}
	return sig, held, nil
}

// wrapOuter 外层锁：加锁任务在最前，释放锁任务在最后，失败时由错误回调释放
func wrapOuter(sig canvas.Node, ids []string) canvas.Node {
	var body canvas.Node
	switch x := sig.(type) {
	case *canvas.Step, *canvas.Sequence:
		body = canvas.Chain(sig, task.ReleaseLocksStep(ids))
	case *canvas.Parallel:
		// 分支失败不影响释放锁
		fj := canvas.Chord(x.Tasks, task.ReleaseLocksStep(ids))
		fj.VerboseName, fj.Description = x.VerboseName, x.Description
		body = fj
	case *canvas.ForkJoin:
		if x.Join == nil {
			x.Join = task.ReleaseLocksStep(ids)
		} else {
			x.Join = canvas.Chain(x.Join, task.ReleaseLocksStep(ids))
		}
		body = x
	}
	outer := canvas.Chain(task.AcquireLocksStep(ids), body)
	outer.OnError = []*canvas.Step{task.ReleaseLocksOnErrorStep(ids)}
	// 原序列的错误回调保留在内层序列上
	if seq, ok := sig.(*canvas.Sequence); ok {
		outer.VerboseName, outer.Description = seq.VerboseName, seq.Description
	}
	return outer
}

func (p *Processor) newStates(sig canvas.Node, ref target.Ref) []*state.TaskState {
	leaves := canvas.TaskLeaves(sig)
	states := make([]*state.TaskState, 0, len(leaves))
	for _, leaf := range leaves {
		verbose := leaf.VerboseName
		if p.deps.Namer != nil {
			verbose = p.deps.Namer.VerboseName(leaf)
		}
		states = append(states, &state.TaskState{
			TaskID:      leaf.ID,
			TaskName:    leaf.Name,
			VerboseName: verbose,
			Status:      state.StatusPending,
			TargetType:  ref.TypeTag(),
			TargetID:    ref.ID,
		})
	}
	return states
}

// releaseInner 释放提交前已获取的内层锁
func (p *Processor) releaseInner(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, ids := range p.innerHeld {
		if len(ids) == 0 {
			continue
		}
		if err := p.deps.Locks.Release(ctx, ids...); err != nil {
			p.deps.Logger.Error("释放内层锁失败", err, watermill.LogFields{"lock_ids": ids})
		}
	}
	p.innerHeld = nil
}

// Run 提交全部工作流并保存结果句柄（对外导出）
// 没有可提交的对象时返回 nil 结果
func (p *Processor) Run(ctx context.Context) (*executor.AsyncResult, error) {
	if err := p.build(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitted {
		return nil, fmt.Errorf("工作流已提交")
	}
	if len(p.signatures) == 0 {
		p.submitted = true
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "processor.Run", trace.WithAttributes(
		attribute.Int("async_actions.objects", len(p.objects)),
		attribute.Int("async_actions.locked_objects", len(p.locked)),
	))
	defer span.End()

	result, err := p.deps.Executor.Submit(ctx, p.workflow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.releaseInner(ctx)
		p.failStates(ctx, err)
		return nil, fmt.Errorf("提交工作流失败: %w", err)
	}
	p.submitted = true
	p.innerHeld = nil
	metrics.BatchSubmitCounter.Inc()

	if p.deps.Results != nil {
		gr := &storage.GroupResult{ID: result.ID, TaskIDs: result.TaskIDs}
		if err := p.deps.Results.SaveGroupResult(ctx, gr); err != nil {
			p.deps.Logger.Error("保存提交结果失败", err, watermill.LogFields{"result_id": result.ID})
		}
	}
	p.deps.Logger.Info("✅ 批量操作已提交", watermill.LogFields{
		"result_id": result.ID,
		"objects":   len(p.signatures),
		"locked":    len(p.locked),
	})
	return result, nil
}

// failStates 提交失败时将所有状态标记为 FAILURE
func (p *Processor) failStates(ctx context.Context, cause error) {
	tb := fmt.Sprintf("提交失败\n%s", cause.Error())
	for _, group := range p.states {
		for _, st := range group {
			if err := p.deps.States.UpdateTaskStatus(context.WithoutCancel(ctx), st.TaskID, state.StatusFailure, tb); err != nil {
				p.deps.Logger.Error("更新任务状态失败", err, watermill.LogFields{"task_id": st.TaskID})
				continue
			}
			st.Status, st.Traceback = state.StatusFailure, tb
		}
	}
}
