package executor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 任务名到处理函数的注册表（对外导出）
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register 注册处理函数，同名只能注册一次
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("任务名不能为空")
	}
	if h == nil {
		return fmt.Errorf("处理函数不能为空: %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("任务 %s 已注册", name)
	}
	r.handlers[name] = h
	return nil
}

// Get 获取处理函数
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names 已注册的任务名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
