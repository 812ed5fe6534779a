package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/robfig/cron/v3"

	"github.com/LENAX/async-actions/pkg/core/action"
	"github.com/LENAX/async-actions/pkg/core/target"
)

// Source 每次触发时提供要处理的对象
type Source func(ctx context.Context) ([]target.Object, error)

// Job 定时操作
type Job struct {
	Name        string
	CronExpr    string
	Action      *action.Action
	Source      Source
	RuntimeData map[string]any
}

// CronScheduler 定时触发批量操作（对外导出）
type CronScheduler struct {
	cron    *cron.Cron
	backend action.Backend
	logger  watermill.LoggerAdapter
	parser  cron.Parser

	mu      sync.RWMutex
	jobs    map[string]*Job
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(backend action.Backend, logger watermill.LoggerAdapter) *CronScheduler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)), // 支持秒级精度
		backend: backend,
		logger:  logger,
		parser:  parser,
		jobs:    make(map[string]*Job),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register 注册定时操作（对外导出）
func (cs *CronScheduler) Register(job *Job) error {
	if job.Name == "" || job.Action == nil || job.Source == nil {
		return fmt.Errorf("定时操作缺少名称、操作或对象来源")
	}
	if _, err := cs.parser.Parse(job.CronExpr); err != nil {
		return fmt.Errorf("定时操作 %s 的Cron表达式无效: %w", job.Name, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.jobs[job.Name]; exists {
		return fmt.Errorf("定时操作 %s 已注册", job.Name)
	}

	entryID, err := cs.cron.AddFunc(job.CronExpr, func() {
		if _, err := cs.run(cs.ctx, job); err != nil {
			cs.logger.Error("❌ 定时操作执行失败", err, watermill.LogFields{"job": job.Name})
		}
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	cs.jobs[job.Name] = job
	cs.entries[job.Name] = entryID

	cs.logger.Info("✅ 已注册定时操作", watermill.LogFields{
		"job":       job.Name,
		"action":    job.Action.Name,
		"cron_expr": job.CronExpr,
	})
	return nil
}

// Unregister 取消注册（对外导出）
func (cs *CronScheduler) Unregister(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return fmt.Errorf("定时操作 %s 未注册", name)
	}
	cs.cron.Remove(entryID)
	delete(cs.jobs, name)
	delete(cs.entries, name)

	cs.logger.Info("✅ 已取消定时操作", watermill.LogFields{"job": name})
	return nil
}

// Trigger 立即执行一次定时操作
func (cs *CronScheduler) Trigger(ctx context.Context, name string) (*action.Report, error) {
	cs.mu.RLock()
	job, exists := cs.jobs[name]
	cs.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("定时操作 %s 未注册", name)
	}
	return cs.run(ctx, job)
}

func (cs *CronScheduler) run(ctx context.Context, job *Job) (*action.Report, error) {
	cs.logger.Info("🕐 触发定时操作", watermill.LogFields{"job": job.Name})
	objs, err := job.Source(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载定时操作对象失败: %w", err)
	}
	if len(objs) == 0 {
		return &action.Report{Action: job.Action.Name}, nil
	}
	report, err := job.Action.Run(ctx, cs.backend, objs, job.RuntimeData)
	if err != nil {
		return nil, err
	}
	cs.logger.Info("✅ 定时操作已提交", watermill.LogFields{
		"job":       job.Name,
		"submitted": len(report.Submitted),
		"locked":    len(report.Locked),
	})
	return report, nil
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	cs.logger.Info("✅ 定时调度器已启动", nil)
}

// Stop 停止调度并等待正在执行的触发结束
func (cs *CronScheduler) Stop() {
	<-cs.cron.Stop().Done()
	cs.cancel()
	cs.logger.Info("✅ 定时调度器已停止", nil)
}

// Jobs 已注册的定时操作名称
func (cs *CronScheduler) Jobs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
