package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/messages"
	"github.com/LENAX/async-actions/pkg/core/processor"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/core/task"
)

// ErrMissingParam 缺少必填的运行时参数
var ErrMissingParam = errors.New("缺少必填参数")

// MissingParamError 缺少的参数列表
type MissingParamError struct {
	Action string
	Names  []string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("操作 %s 缺少必填参数: %s", e.Action, strings.Join(e.Names, ", "))
}

func (e *MissingParamError) Unwrap() error { return ErrMissingParam }

// Backend 操作运行所需的能力，由 engine 实现
type Backend interface {
	NewProcessor(template canvas.Node, objects []target.Object, runtimeData map[string]any, mode processor.LockMode) *processor.Processor
	BuildMessages(ctx context.Context, states []*state.TaskState) ([]*messages.Message, error)
}

// Action 可由管理员批量触发的操作（对外导出）
type Action struct {
	Name        string
	VerboseName string
	Description string
	LockMode    processor.LockMode
	Permissions []string
	Required    []string

	template canvas.Node
}

// Option 操作选项
type Option func(*Action)

func WithName(name string) Option {
	return func(a *Action) { a.Name = name }
}

func WithVerboseName(name string) Option {
	return func(a *Action) { a.VerboseName = name }
}

func WithDescription(desc string) Option {
	return func(a *Action) { a.Description = desc }
}

func WithLockMode(mode processor.LockMode) Option {
	return func(a *Action) { a.LockMode = mode }
}

// WithPermissions 运行操作需要的全部权限
func WithPermissions(perms ...string) Option {
	return func(a *Action) { a.Permissions = append(a.Permissions, perms...) }
}

// WithRequiredParams 运行时必须提供的参数
func WithRequiredParams(names ...string) Option {
	return func(a *Action) { a.Required = append(a.Required, names...) }
}

// AsAction 由工作流模板创建操作（对外导出）
// 名称默认取第一个任务的短名称，显示名称和描述默认取单任务上的设置
func AsAction(template canvas.Node, opts ...Option) (*Action, error) {
	if template == nil {
		return nil, fmt.Errorf("工作流模板不能为空")
	}
	a := &Action{template: template}
	for _, opt := range opts {
		opt(a)
	}

	leaves := canvas.TaskLeaves(template)
	if a.Name == "" && len(leaves) > 0 {
		a.Name = task.ShortName(leaves[0].Name)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("无法确定操作名称")
	}
	if step, ok := template.(*canvas.Step); ok {
		if a.VerboseName == "" {
			a.VerboseName = step.VerboseName
		}
		if a.Description == "" {
			a.Description = step.Description
		}
	}
	if a.VerboseName == "" {
		a.VerboseName = task.DeriveVerboseName(a.Name)
	}
	return a, nil
}

// MustAsAction 同 AsAction，出错时 panic
func MustAsAction(template canvas.Node, opts ...Option) *Action {
	a, err := AsAction(template, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// Template 返回工作流模板
func (a *Action) Template() canvas.Node {
	return a.template
}

// Allowed 用户权限是否满足操作要求
func (a *Action) Allowed(perms []string) bool {
	have := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		have[p] = struct{}{}
	}
	for _, p := range a.Permissions {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}

// CheckParams 校验必填参数
func (a *Action) CheckParams(runtimeData map[string]any) error {
	var missing []string
	for _, name := range a.Required {
		if v, ok := runtimeData[name]; !ok || v == nil || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingParamError{Action: a.Name, Names: missing}
	}
	return nil
}

// Report 一次操作运行的结果
type Report struct {
	Action    string
	Result    *executor.AsyncResult
	Submitted []target.Object
	Locked    []target.Object
	Messages  []*messages.Message
}

// Run 对一批对象运行操作（对外导出）
func (a *Action) Run(ctx context.Context, backend Backend, objects []target.Object, runtimeData map[string]any) (*Report, error) {
	if err := a.CheckParams(runtimeData); err != nil {
		return nil, err
	}
	p := backend.NewProcessor(a.template, objects, runtimeData, a.LockMode)
	result, err := p.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("运行操作 %s 失败: %w", a.Name, err)
	}
	report := &Report{Action: a.Name, Result: result}
	if report.Submitted, err = p.AcceptedObjects(ctx); err != nil {
		return nil, err
	}
	if report.Locked, err = p.LockedObjects(ctx); err != nil {
		return nil, err
	}
	states, err := p.AllTaskStates(ctx)
	if err != nil {
		return nil, err
	}
	if report.Messages, err = backend.BuildMessages(ctx, states); err != nil {
		return nil, err
	}
	return report, nil
}

// Registry 操作注册表
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register 注册操作，名称重复时报错
func (r *Registry) Register(a *Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.Name]; exists {
		return fmt.Errorf("操作已注册: %s", a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

func (r *Registry) Get(name string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// List 按名称排序返回全部操作
func (r *Registry) List() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
