package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/core/messages"
	"github.com/LENAX/async-actions/pkg/core/state"
)

func respondError(c *gin.Context, status int, format string, args ...any) {
	c.JSON(status, dto.NewErrorResponse(status, fmt.Sprintf(format, args...)))
}

func toSummary(st *state.TaskState) dto.TaskStateSummary {
	return dto.TaskStateSummary{
		TaskID:      st.TaskID,
		TaskName:    st.TaskName,
		VerboseName: st.VerboseName,
		Status:      string(st.Status),
		Target:      st.Target().String(),
		CreatedAt:   st.CreatedTime,
		UpdatedAt:   st.UpdatedTime,
	}
}

func toMessageDetail(m *messages.Message) dto.MessageDetail {
	return dto.MessageDetail{
		Level:     m.Level.String(),
		StatusTag: m.StatusTag,
		HTML:      m.HTML,
		Checksum:  m.Checksum,
	}
}

// formatDuration 格式化持续时间
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
