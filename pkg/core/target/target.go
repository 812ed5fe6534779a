package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownType 未注册的目标类型
var ErrUnknownType = errors.New("未注册的目标类型")

// Ref 多态目标引用（对外导出）
// 由 (命名空间, 类型, ID) 唯一确定一条业务记录，等价于"类型标签 + 主键"
type Ref struct {
	Namespace string `json:"namespace"` // 命名空间（如应用名）
	Type      string `json:"type"`      // 类型名称
	ID        string `json:"id"`        // 主键（字符串形式）
}

// NewRef 创建目标引用（对外导出）
func NewRef(namespace, typ, id string) Ref {
	return Ref{Namespace: namespace, Type: typ, ID: id}
}

// TypeTag 返回类型标签 "namespace.Type"（对外导出）
func (r Ref) TypeTag() string {
	if r.Namespace == "" {
		return r.Type
	}
	return r.Namespace + "." + r.Type
}

// IsZero 是否为空引用
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

func (r Ref) String() string {
	return fmt.Sprintf("%s(%s)", r.TypeTag(), r.ID)
}

// ParseRef 由类型标签和ID还原引用（对外导出）
// tag 的最后一个"."之后为类型名，之前为命名空间
func ParseRef(tag, id string) (Ref, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Ref{}, fmt.Errorf("类型标签不能为空")
	}
	if id == "" {
		return Ref{}, fmt.Errorf("目标ID不能为空: %s", tag)
	}
	idx := strings.LastIndex(tag, ".")
	if idx < 0 {
		return Ref{Type: tag, ID: id}, nil
	}
	if idx == len(tag)-1 {
		return Ref{}, fmt.Errorf("非法的类型标签: %s", tag)
	}
	return Ref{Namespace: tag[:idx], Type: tag[idx+1:], ID: id}, nil
}

// Object 可被批量操作的业务对象（对外导出）
type Object interface {
	TargetRef() Ref
}

// TargetRef 使 Ref 本身也满足 Object 接口
func (r Ref) TargetRef() Ref { return r }

// Loader 按ID加载业务记录
type Loader func(ctx context.Context, id string) (any, error)

// Registry 类型标签到加载函数的注册表（对外导出）
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry 创建注册表（对外导出）
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

// Register 注册加载函数，同一类型标签只能注册一次
func (r *Registry) Register(tag string, loader Loader) error {
	if tag == "" {
		return fmt.Errorf("类型标签不能为空")
	}
	if loader == nil {
		return fmt.Errorf("加载函数不能为空: %s", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loaders[tag]; exists {
		return fmt.Errorf("类型 %s 已注册", tag)
	}
	r.loaders[tag] = loader
	return nil
}

// MustRegister 注册失败时 panic
func (r *Registry) MustRegister(tag string, loader Loader) {
	if err := r.Register(tag, loader); err != nil {
		panic(err)
	}
}

// Has 是否已注册
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[tag]
	return ok
}

// Types 返回所有已注册的类型标签
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.loaders))
	for tag := range r.loaders {
		tags = append(tags, tag)
	}
	return tags
}

// Resolve 加载引用指向的记录（对外导出）
func (r *Registry) Resolve(ctx context.Context, ref Ref) (any, error) {
	r.mu.RLock()
	loader, ok := r.loaders[ref.TypeTag()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref.TypeTag())
	}
	obj, err := loader(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("加载目标 %s 失败: %w", ref, err)
	}
	return obj, nil
}

// Lazy 延迟解析的目标（对外导出）
// 构造时不访问存储，第一次 Get 时才解析，结果（含错误）会被缓存
type Lazy struct {
	ref      Ref
	registry *Registry

	once  sync.Once
	value any
	err   error
}

// NewLazy 创建延迟解析目标（对外导出）
func NewLazy(registry *Registry, ref Ref) *Lazy {
	return &Lazy{ref: ref, registry: registry}
}

// Ref 返回目标引用
func (l *Lazy) Ref() Ref { return l.ref }

// Get 解析并返回目标记录
func (l *Lazy) Get(ctx context.Context) (any, error) {
	l.once.Do(func() {
		if l.registry == nil {
			l.err = fmt.Errorf("%w: %s", ErrUnknownType, l.ref.TypeTag())
			return
		}
		l.value, l.err = l.registry.Resolve(ctx, l.ref)
	})
	return l.value, l.err
}
