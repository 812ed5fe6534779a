package canvas

import (
	"fmt"

	"github.com/begmaroman/go-dag"
)

// vertex go-dag 顶点，包装叶子任务
type vertex struct {
	step *Step
}

// ID 实现 go-dag 的 Identifiable 接口
func (v *vertex) ID() string { return v.step.ID }

// Hash 按任务ID计算顶点哈希，默认哈希只序列化导出字段
func (v *vertex) Hash() (dag.VHash, error) { return dag.ToHash(v.step.ID) }

// Graph 叶子任务的执行依赖图（对外导出）
type Graph struct {
	d *dag.DAG[*vertex]
}

// BuildDAG 由工作流构建叶子任务的依赖图（对外导出）
// 要求所有叶子已分配唯一ID（先调用 Freeze），重复ID会返回错误
func BuildDAG(n Node) (*Graph, error) {
	d := dag.NewDAG[*vertex]()
	for _, s := range Leaves(n) {
		if s.ID == "" {
			return nil, fmt.Errorf("任务 %s 缺少ID，请先调用 Freeze", s.Name)
		}
		if _, err := d.AddVertex(&vertex{step: s}); err != nil {
			return nil, fmt.Errorf("添加节点失败: Task ID=%s, Error=%w", s.ID, err)
		}
	}
	edges := make(map[[2]string]struct{})
	var addEdges func(node Node) error
	link := func(from, to []*Step) error {
		for _, src := range from {
			for _, dst := range to {
				key := [2]string{src.ID, dst.ID}
				if _, ok := edges[key]; ok {
					continue
				}
				edges[key] = struct{}{}
				if err := d.AddEdge(src.ID, dst.ID); err != nil {
					return fmt.Errorf("添加边失败: %s -> %s, Error=%w", src.ID, dst.ID, err)
				}
			}
		}
		return nil
	}
	addEdges = func(node Node) error {
		switch x := node.(type) {
		case *Sequence:
			for i, t := range x.Tasks {
				if err := addEdges(t); err != nil {
					return err
				}
				if i > 0 {
					if err := link(exits(x.Tasks[i-1]), entries(t)); err != nil {
						return err
					}
				}
			}
		case *Parallel:
			for _, t := range x.Tasks {
				if err := addEdges(t); err != nil {
					return err
				}
			}
		case *ForkJoin:
			for _, t := range x.Tasks {
				if err := addEdges(t); err != nil {
					return err
				}
			}
			if x.Join != nil {
				if err := addEdges(x.Join); err != nil {
					return err
				}
				for _, t := range x.Tasks {
					if err := link(exits(t), entries(x.Join)); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := addEdges(n); err != nil {
		return nil, err
	}
	return &Graph{d: d}, nil
}

// Roots 没有前置依赖的叶子任务ID
func (g *Graph) Roots() []string {
	roots := g.d.GetRoots()
	out := make([]string, 0, len(roots))
	for id := range roots {
		out = append(out, id)
	}
	return out
}

// Size 叶子任务数量
func (g *Graph) Size() int {
	return len(g.d.GetVertices())
}

// Parents 返回任务的直接前置任务ID
func (g *Graph) Parents(id string) ([]string, error) {
	parents, err := g.d.GetParents(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parents))
	for pid := range parents {
		out = append(out, pid)
	}
	return out, nil
}

// entries 子图中最先执行的叶子
func entries(n Node) []*Step {
	switch x := n.(type) {
	case *Step:
		return []*Step{x}
	case *Sequence:
		for _, t := range x.Tasks {
			if e := entries(t); len(e) > 0 {
				return e
			}
		}
	case *Parallel:
		var out []*Step
		for _, t := range x.Tasks {
			out = append(out, entries(t)...)
		}
		return out
	case *ForkJoin:
		var out []*Step
		for _, t := range x.Tasks {
			out = append(out, entries(t)...)
		}
		if len(out) == 0 && x.Join != nil {
			return entries(x.Join)
		}
		return out
	}
	return nil
}

// exits 子图中最后结束的叶子
func exits(n Node) []*Step {
	switch x := n.(type) {
	case *Step:
		return []*Step{x}
	case *Sequence:
		for i := len(x.Tasks) - 1; i >= 0; i-- {
			if e := exits(x.Tasks[i]); len(e) > 0 {
				return e
			}
		}
	case *Parallel:
		var out []*Step
		for _, t := range x.Tasks {
			out = append(out, exits(t)...)
		}
		return out
	case *ForkJoin:
		if x.Join != nil {
			if e := exits(x.Join); len(e) > 0 {
				return e
			}
		}
		var out []*Step
		for _, t := range x.Tasks {
			out = append(out, exits(t)...)
		}
		return out
	}
	return nil
}
