package canvas

import (
	"fmt"
	"sort"
	"strings"
)

// Kind 节点类型
type Kind string

const (
	KindStep     Kind = "step"     // 单个任务
	KindSequence Kind = "sequence" // 顺序执行（chain）
	KindParallel Kind = "parallel" // 并行执行（group）
	KindForkJoin Kind = "forkjoin" // 并行后汇合（chord）
)

// Node 工作流图节点（对外导出）
// 封闭联合类型，只有本包中的 Step/Sequence/Parallel/ForkJoin 实现
type Node interface {
	NodeID() string
	Kind() Kind
	String() string
	sealed()
}

// Step 单个任务调用（对外导出）
type Step struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"` // 注册的任务名
	Args        []any          `json:"args,omitempty"`
	Kwargs      map[string]any `json:"kwargs,omitempty"`
	Headers     map[string]any `json:"headers,omitempty"`
	VerboseName string         `json:"verbose_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Control     bool           `json:"control,omitempty"` // 内部控制任务（如加锁/释放锁），不创建 TaskState
	OnError     []*Step        `json:"on_error,omitempty"`
}

// Sequence 顺序执行的子图（对外导出）
type Sequence struct {
	ID          string  `json:"id"`
	Tasks       []Node  `json:"-"`
	OnError     []*Step `json:"on_error,omitempty"`
	VerboseName string  `json:"verbose_name,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Parallel 并行执行的子图，分支之间互不影响（对外导出）
type Parallel struct {
	ID          string `json:"id"`
	Tasks       []Node `json:"-"`
	VerboseName string `json:"verbose_name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ForkJoin 所有分支结束后执行一次 Join（对外导出）
type ForkJoin struct {
	ID          string `json:"id"`
	Tasks       []Node `json:"-"`
	Join        Node   `json:"-"`
	VerboseName string `json:"verbose_name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (*Step) sealed()     {}
func (*Sequence) sealed() {}
func (*Parallel) sealed() {}
func (*ForkJoin) sealed() {}

func (s *Step) NodeID() string     { return s.ID }
func (s *Sequence) NodeID() string { return s.ID }
func (p *Parallel) NodeID() string { return p.ID }
func (f *ForkJoin) NodeID() string { return f.ID }

func (*Step) Kind() Kind     { return KindStep }
func (*Sequence) Kind() Kind { return KindSequence }
func (*Parallel) Kind() Kind { return KindParallel }
func (*ForkJoin) Kind() Kind { return KindForkJoin }

// NewStep 创建任务调用（对外导出）
func NewStep(name string, args ...any) *Step {
	return &Step{Name: name, Args: args}
}

// WithKwargs 设置关键字参数，返回自身便于链式调用
func (s *Step) WithKwargs(kwargs map[string]any) *Step {
	if s.Kwargs == nil {
		s.Kwargs = make(map[string]any, len(kwargs))
	}
	for k, v := range kwargs {
		s.Kwargs[k] = v
	}
	return s
}

// WithVerboseName 设置显示名称
func (s *Step) WithVerboseName(name string) *Step {
	s.VerboseName = name
	return s
}

// WithDescription 设置描述
func (s *Step) WithDescription(desc string) *Step {
	s.Description = desc
	return s
}

// SetHeader 设置单个请求头
func (s *Step) SetHeader(key string, value any) {
	if s.Headers == nil {
		s.Headers = make(map[string]any)
	}
	s.Headers[key] = value
}

// Chain 创建顺序子图（对外导出）
// 没有错误回调的嵌套 Sequence 会被展开
func Chain(nodes ...Node) *Sequence {
	seq := &Sequence{}
	for _, n := range nodes {
		if inner, ok := n.(*Sequence); ok && len(inner.OnError) == 0 && inner.ID == "" {
			seq.Tasks = append(seq.Tasks, inner.Tasks...)
			continue
		}
		seq.Tasks = append(seq.Tasks, n)
	}
	return seq
}

// Group 创建并行子图（对外导出）
func Group(nodes ...Node) *Parallel {
	return &Parallel{Tasks: nodes}
}

// Chord 创建 fork-join 子图（对外导出）
func Chord(tasks []Node, join Node) *ForkJoin {
	return &ForkJoin{Tasks: tasks, Join: join}
}

// String 返回可读签名，如 orders.ship(1, force=true)
func (s *Step) String() string {
	parts := make([]string, 0, len(s.Args)+len(s.Kwargs))
	for _, a := range s.Args {
		parts = append(parts, formatValue(a))
	}
	keys := make([]string, 0, len(s.Kwargs))
	for k := range s.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(s.Kwargs[k])))
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(parts, ", "))
}

func (s *Sequence) String() string {
	parts := make([]string, len(s.Tasks))
	for i, t := range s.Tasks {
		parts[i] = t.String()
	}
	return strings.Join(parts, " | ")
}

func (p *Parallel) String() string {
	return fmt.Sprintf("group([%s])", joinNodes(p.Tasks))
}

func (f *ForkJoin) String() string {
	join := ""
	if f.Join != nil {
		join = f.Join.String()
	}
	return fmt.Sprintf("chord([%s], %s)", joinNodes(f.Tasks), join)
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
