package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	istorage "github.com/LENAX/async-actions/internal/storage"
	"github.com/LENAX/async-actions/pkg/config"
	"github.com/LENAX/async-actions/pkg/core/action"
	"github.com/LENAX/async-actions/pkg/core/cache"
	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/core/messages"
	"github.com/LENAX/async-actions/pkg/core/processor"
	"github.com/LENAX/async-actions/pkg/core/realtime"
	"github.com/LENAX/async-actions/pkg/core/scheduler"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/core/task"
	"github.com/LENAX/async-actions/pkg/metrics"
	"github.com/LENAX/async-actions/pkg/storage"
)

// ErrNotRunning 引擎未启动
var ErrNotRunning = errors.New("引擎未启动")

// ErrActionNotFound 操作未注册
var ErrActionNotFound = errors.New("操作未注册")

const subscriberBufferSize = 64

// Option 引擎选项
type Option func(*options)

type options struct {
	logger    watermill.LoggerAdapter
	repo      storage.Repository
	lockStore lock.Store
}

// WithLogger 指定日志，默认按配置的日志级别创建
func WithLogger(logger watermill.LoggerAdapter) Option {
	return func(o *options) { o.logger = logger }
}

// WithRepository 使用已有的存储，不再按配置打开数据库
func WithRepository(repo storage.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// WithLockStore 使用指定的锁存储
func WithLockStore(store lock.Store) Option {
	return func(o *options) { o.lockStore = store }
}

// Engine 批量异步操作引擎（对外导出）
// 组装存储、锁、执行器、状态跟踪、消息服务和定时调度
type Engine struct {
	cfg    *config.EngineConfig
	logger watermill.LoggerAdapter

	backend   *istorage.Backend
	repo      storage.Repository
	locks     *lock.Manager
	targets   *target.Registry
	registry  *executor.Registry
	executor  *executor.Executor
	runtime   *task.Runtime
	tracker   *state.Tracker
	pubsub    *gochannel.GoChannel
	router    *message.Router
	msgCache  cache.Cache
	messages  *messages.Service
	actions   *action.Registry
	scheduler *scheduler.CronScheduler

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// NewLogger 按日志级别创建 watermill 日志
func NewLogger(level string) watermill.LoggerAdapter {
	return watermill.NewStdLogger(level == "debug" || level == "trace", level == "trace")
}

// New 创建引擎实例（对外导出）
// cfg 为空时使用默认配置
func New(ctx context.Context, cfg *config.EngineConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NewLogger(cfg.AsyncActions.General.LogLevel)
	}

	e := &Engine{cfg: cfg, logger: o.logger}
	if err := e.initStorage(ctx, o); err != nil {
		return nil, err
	}
	if err := e.initComponents(); err != nil {
		e.closeStorage()
		return nil, err
	}
	return e, nil
}

func (e *Engine) initStorage(ctx context.Context, o *options) error {
	if o.repo != nil {
		e.repo = o.repo
		lockStore := o.lockStore
		if lockStore == nil {
			lockStore = o.repo
		}
		e.locks = lock.NewManager(lockStore, e.logger)
		return nil
	}
	backend, err := istorage.Open(ctx, e.cfg)
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}
	e.backend = backend
	e.repo = backend.Repository
	lockStore := backend.Locks
	if o.lockStore != nil {
		lockStore = o.lockStore
	}
	e.locks = lock.NewManager(lockStore, e.logger)
	return nil
}

func (e *Engine) initComponents() error {
	a := e.cfg.AsyncActions

	// 状态事件经 watermill 发布，发布方等待跟踪器确认，保证状态按顺序落库
	e.pubsub = gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: true,
		},
		e.logger,
	)
	router, err := message.NewRouter(message.RouterConfig{}, e.logger)
	if err != nil {
		return fmt.Errorf("创建消息路由器失败: %w", err)
	}
	e.router = router
	e.tracker = state.NewTracker(e.repo, e.logger)
	e.tracker.Register(e.router, e.pubsub)

	e.targets = target.NewRegistry()
	retry := task.RetryPolicy{
		Delay:      a.Execution.LockRetry.Delay,
		Backoff:    a.Execution.LockRetry.Backoff,
		MaxDelay:   a.Execution.LockRetry.MaxDelay,
		MaxRetries: a.Execution.LockRetry.MaxRetries,
		Jitter:     e.cfg.JitterEnabled(),
	}
	e.runtime = task.NewRuntime(e.repo, e.locks, e.targets, retry, e.logger)
	e.registry = executor.NewRegistry()
	if err := e.runtime.RegisterControlTasks(e.registry); err != nil {
		return err
	}
	e.executor, err = executor.NewExecutor(e.registry, executor.NewWatermillReporter(e.pubsub, state.TopicTaskStatus), e.cfg.GetWorkerConcurrency(), e.logger)
	if err != nil {
		return fmt.Errorf("创建执行器失败: %w", err)
	}
	e.executor.OnAbort(e.runtime.Abort)

	if a.Messages.Cache.Enabled {
		switch a.Messages.Cache.Backend {
		case config.CacheBackendMemory:
			e.msgCache = cache.NewMemoryCache(a.Messages.Cache.CleanInterval)
		default:
			if e.msgCache, err = cache.NewRistrettoCache(a.Messages.Cache.MaxCost); err != nil {
				return err
			}
		}
	}
	renderer, err := messages.NewRenderer(a.Messages.Debug, e.msgCache, a.Messages.Cache.TTL)
	if err != nil {
		return err
	}
	e.messages = messages.NewService(e.repo, renderer, e.logger)
	e.actions = action.NewRegistry()
	e.scheduler = scheduler.NewCronScheduler(e, e.logger)
	return nil
}

// Start 启动引擎（对外导出）
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	routerErr := make(chan error, 1)
	go func() {
		routerErr <- e.router.Run(runCtx)
	}()
	select {
	case <-e.router.Running():
	case err := <-routerErr:
		cancel()
		return fmt.Errorf("启动消息路由器失败: %w", err)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	e.scheduler.Start()
	e.cancel = cancel
	e.running = true
	e.logger.Info("✅ 批量异步操作引擎已启动", watermill.LogFields{
		"instance": e.cfg.AsyncActions.General.InstanceName,
		"workers":  e.cfg.GetWorkerConcurrency(),
		"locks":    e.cfg.GetLockBackend(),
	})
	return nil
}

// Stop 停止引擎，等待正在执行的工作流结束（对外导出）
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.running {
		e.scheduler.Stop()
		if err := e.executor.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := e.router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭消息路由器失败: %w", err))
		}
		e.cancel()
		e.running = false
	}
	if err := e.pubsub.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.msgCache != nil {
		e.msgCache.Close()
	}
	if err := e.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	e.logger.Info("✅ 批量异步操作引擎已停止", nil)
	return errors.Join(errs...)
}

func (e *Engine) closeStorage() error {
	if e.backend != nil {
		return e.backend.Close()
	}
	return nil
}

// IsRunning 是否已启动
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RegisterTask 注册任务定义（对外导出）
func (e *Engine) RegisterTask(defs ...*task.Definition) error {
	return e.runtime.Register(e.registry, defs...)
}

// RegisterTarget 注册目标类型及其加载函数（对外导出）
func (e *Engine) RegisterTarget(typeTag string, loader target.Loader) error {
	return e.targets.Register(typeTag, loader)
}

// RegisterAction 注册批量操作（对外导出）
func (e *Engine) RegisterAction(a *action.Action) error {
	if err := e.actions.Register(a); err != nil {
		return err
	}
	e.logger.Debug("已注册操作", watermill.LogFields{"action": a.Name})
	return nil
}

// ScheduleAction 定时对 source 提供的对象运行已注册的操作
func (e *Engine) ScheduleAction(jobName, cronExpr, actionName string, source scheduler.Source, runtimeData map[string]any) error {
	a, ok := e.actions.Get(actionName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionNotFound, actionName)
	}
	return e.scheduler.Register(&scheduler.Job{
		Name:        jobName,
		CronExpr:    cronExpr,
		Action:      a,
		Source:      source,
		RuntimeData: runtimeData,
	})
}

// NewProcessor 创建处理器，实现 action.Backend
func (e *Engine) NewProcessor(template canvas.Node, objects []target.Object, runtimeData map[string]any, mode processor.LockMode) *processor.Processor {
	return processor.New(processor.Deps{
		Locks:    e.locks,
		States:   e.repo,
		Results:  e.repo,
		Executor: e,
		Namer:    e.runtime,
		Logger:   e.logger,
	}, template, objects, runtimeData, mode)
}

// Submit 未启动时拒绝提交，避免状态事件无人处理
func (e *Engine) Submit(ctx context.Context, node canvas.Node) (*executor.AsyncResult, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}
	return e.executor.Submit(ctx, node)
}

// BuildMessages 实现 action.Backend
func (e *Engine) BuildMessages(ctx context.Context, states []*state.TaskState) ([]*messages.Message, error) {
	return e.messages.BuildAll(ctx, states)
}

// RunAction 按名称对一批目标运行操作（对外导出）
func (e *Engine) RunAction(ctx context.Context, name string, refs []target.Ref, runtimeData map[string]any) (*action.Report, error) {
	a, ok := e.actions.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	objs := make([]target.Object, len(refs))
	for i, ref := range refs {
		objs[i] = ref
	}
	return a.Run(ctx, e, objs, runtimeData)
}

// Subscribe 订阅状态事件流，ctx 结束时关闭通道（对外导出）
// 消费过慢时丢弃事件，不阻塞状态落库
func (e *Engine) Subscribe(ctx context.Context) (<-chan *state.StatusEvent, error) {
	msgs, err := e.pubsub.Subscribe(ctx, state.TopicTaskStatus)
	if err != nil {
		return nil, fmt.Errorf("订阅状态事件失败: %w", err)
	}
	buf := realtime.NewBuffer(subscriberBufferSize, 0.8).
		OnBackpressure(func(usage float64) {
			e.logger.Info("订阅方消费变慢", watermill.LogFields{"usage": usage})
		}).
		OnDrop(func(ev *state.StatusEvent) {
			metrics.DroppedEventCounter.Inc()
			e.logger.Debug("订阅方消费过慢，丢弃状态事件", watermill.LogFields{"task_id": ev.TaskID})
		})
	go func() {
		defer buf.Close()
		for msg := range msgs {
			msg.Ack()
			ev, err := state.UnmarshalStatusEvent(msg.Payload)
			if err != nil {
				continue
			}
			buf.Push(ev)
		}
	}()

	out := make(chan *state.StatusEvent)
	go func() {
		defer close(out)
		for ev := range buf.C() {
			buf.Ack()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Config 引擎配置
func (e *Engine) Config() *config.EngineConfig { return e.cfg }

// Logger 引擎日志
func (e *Engine) Logger() watermill.LoggerAdapter { return e.logger }

// Repository 存储
func (e *Engine) Repository() storage.Repository { return e.repo }

// Locks 锁管理器
func (e *Engine) Locks() *lock.Manager { return e.locks }

// Messages 消息服务
func (e *Engine) Messages() *messages.Service { return e.messages }

// Actions 操作注册表
func (e *Engine) Actions() *action.Registry { return e.actions }

// Runtime 任务运行时
func (e *Engine) Runtime() *task.Runtime { return e.runtime }

// Scheduler 定时调度器
func (e *Engine) Scheduler() *scheduler.CronScheduler { return e.scheduler }
