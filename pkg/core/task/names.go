package task

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/LENAX/async-actions/pkg/core/canvas"
)

// ShortName 任务名最后一段，如 "shop.tasks.ship_order" -> "ship_order"
func ShortName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// DeriveVerboseName 由任务名生成显示名称，如 "shop.ship_order" -> "Ship order"
func DeriveVerboseName(name string) string {
	short := strings.TrimSpace(strings.ReplaceAll(ShortName(name), "_", " "))
	if short == "" {
		return name
	}
	r, size := utf8.DecodeRuneInString(short)
	return string(unicode.ToUpper(r)) + short[size:]
}

// VerboseName 任务显示名称
// 优先级：调用上的显式名称 > 定义上的名称 > 由任务名推导
func (r *Runtime) VerboseName(s *canvas.Step) string {
	if s.VerboseName != "" {
		return s.VerboseName
	}
	if def, ok := r.Definition(s.Name); ok && def.VerboseName != "" {
		return def.VerboseName
	}
	return DeriveVerboseName(s.Name)
}

// Description 任务描述，规则同 VerboseName，没有时为空
func (r *Runtime) Description(s *canvas.Step) string {
	if s.Description != "" {
		return s.Description
	}
	if def, ok := r.Definition(s.Name); ok {
		return def.Description
	}
	return ""
}

// NodeVerboseName 任意节点的显示名称，组合节点没有显式名称时使用其签名
func (r *Runtime) NodeVerboseName(n canvas.Node) string {
	switch x := n.(type) {
	case *canvas.Step:
		return r.VerboseName(x)
	case *canvas.Sequence:
		if x.VerboseName != "" {
			return x.VerboseName
		}
	case *canvas.Parallel:
		if x.VerboseName != "" {
			return x.VerboseName
		}
	case *canvas.ForkJoin:
		if x.VerboseName != "" {
			return x.VerboseName
		}
	}
	return n.String()
}

// NodeDescription 任意节点的描述
func (r *Runtime) NodeDescription(n canvas.Node) string {
	switch x := n.(type) {
	case *canvas.Step:
		return r.Description(x)
	case *canvas.Sequence:
		return x.Description
	case *canvas.Parallel:
		return x.Description
	case *canvas.ForkJoin:
		return x.Description
	}
	return ""
}
