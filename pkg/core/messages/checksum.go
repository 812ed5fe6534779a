package messages

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/LENAX/async-actions/pkg/core/state"
)

// Checksum 消息新鲜度指纹（对外导出）
// RETRY 状态取状态和最后一行 traceback，其余状态取状态和备注数量
func Checksum(st *state.TaskState, noteCount int) string {
	d := xxhash.New()
	_, _ = d.WriteString(string(st.Status))
	_, _ = d.WriteString("\x00")
	if st.Status == state.StatusRetry {
		_, _ = d.WriteString("tb:")
		_, _ = d.WriteString(st.LastTracebackLine())
	} else {
		_, _ = d.WriteString("notes:")
		_, _ = d.WriteString(strconv.Itoa(noteCount))
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
