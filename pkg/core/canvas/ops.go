package canvas

import "fmt"

// Walk 深度优先遍历节点（不含错误回调），fn 返回 false 时不再深入该节点
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch x := n.(type) {
	case *Sequence:
		for _, t := range x.Tasks {
			Walk(t, fn)
		}
	case *Parallel:
		for _, t := range x.Tasks {
			Walk(t, fn)
		}
	case *ForkJoin:
		for _, t := range x.Tasks {
			Walk(t, fn)
		}
		Walk(x.Join, fn)
	}
}

// Leaves 展开所有叶子任务（对外导出）
// 顺序：Sequence 按顺序，Parallel 按分支，ForkJoin 先分支后 Join
func Leaves(n Node) []*Step {
	var out []*Step
	Walk(n, func(node Node) bool {
		if s, ok := node.(*Step); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}

// TaskLeaves 展开所有非控制任务的叶子
func TaskLeaves(n Node) []*Step {
	var out []*Step
	for _, s := range Leaves(n) {
		if !s.Control {
			out = append(out, s)
		}
	}
	return out
}

// Clone 深拷贝节点（对外导出）
// 参数切片和 map 会被复制，值本身为浅拷贝
func Clone(n Node) Node {
	switch x := n.(type) {
	case nil:
		return nil
	case *Step:
		return cloneStep(x)
	case *Sequence:
		return &Sequence{
			ID:          x.ID,
			Tasks:       cloneNodes(x.Tasks),
			OnError:     cloneSteps(x.OnError),
			VerboseName: x.VerboseName,
			Description: x.Description,
		}
	case *Parallel:
		return &Parallel{ID: x.ID, Tasks: cloneNodes(x.Tasks), VerboseName: x.VerboseName, Description: x.Description}
	case *ForkJoin:
		return &ForkJoin{ID: x.ID, Tasks: cloneNodes(x.Tasks), Join: Clone(x.Join), VerboseName: x.VerboseName, Description: x.Description}
	default:
		panic(fmt.Sprintf("未知的节点类型: %T", n))
	}
}

func cloneStep(s *Step) *Step {
	if s == nil {
		return nil
	}
	c := *s
	if s.Args != nil {
		c.Args = append([]any(nil), s.Args...)
	}
	c.Kwargs = cloneMap(s.Kwargs)
	c.Headers = cloneMap(s.Headers)
	c.OnError = cloneSteps(s.OnError)
	return &c
}

func cloneSteps(steps []*Step) []*Step {
	if steps == nil {
		return nil
	}
	out := make([]*Step, len(steps))
	for i, s := range steps {
		out[i] = cloneStep(s)
	}
	return out
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Clone(n)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeKwargs 将运行时参数合并到每个非控制任务的关键字参数中（对外导出）
func MergeKwargs(n Node, data map[string]any) {
	if len(data) == 0 {
		return
	}
	for _, s := range TaskLeaves(n) {
		s.WithKwargs(data)
	}
}

// Freeze 为所有缺少ID的节点及错误回调分配ID（对外导出）
func Freeze(n Node, idgen func() string) {
	var freezeSteps func(steps []*Step)
	freezeSteps = func(steps []*Step) {
		for _, s := range steps {
			if s.ID == "" {
				s.ID = idgen()
			}
			freezeSteps(s.OnError)
		}
	}
	Walk(n, func(node Node) bool {
		switch x := node.(type) {
		case *Step:
			if x.ID == "" {
				x.ID = idgen()
			}
			freezeSteps(x.OnError)
		case *Sequence:
			if x.ID == "" {
				x.ID = idgen()
			}
			freezeSteps(x.OnError)
		case *Parallel:
			if x.ID == "" {
				x.ID = idgen()
			}
		case *ForkJoin:
			if x.ID == "" {
				x.ID = idgen()
			}
		}
		return true
	})
}

// IsComposite 是否为组合节点
func IsComposite(n Node) bool {
	_, ok := n.(*Step)
	return !ok
}
