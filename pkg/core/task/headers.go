package task

import (
	"fmt"

	"github.com/LENAX/async-actions/pkg/core/canvas"
)

const (
	// HeaderLockIDs 任务需要持有的锁ID
	HeaderLockIDs = "lock_ids"
	// HeaderLocksHeld 锁已由提交方获取，任务只需在结束时释放
	HeaderLocksHeld = "locks_held"
)

// LockIDs 从请求头读取锁ID，兼容 JSON 反序列化后的 []any
func LockIDs(headers map[string]any) []string {
	if headers == nil {
		return nil
	}
	return toStrings(headers[HeaderLockIDs])
}

// LocksHeld 锁是否已由提交方获取
func LocksHeld(headers map[string]any) bool {
	if headers == nil {
		return false
	}
	held, _ := headers[HeaderLocksHeld].(bool)
	return held
}

// SetLockHeaders 在任务上设置锁相关请求头
func SetLockHeaders(s *canvas.Step, ids []string, held bool) {
	s.SetHeader(HeaderLockIDs, append([]string(nil), ids...))
	s.SetHeader(HeaderLocksHeld, held)
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{x}
	default:
		return nil
	}
}
