package state

import (
	"strings"
	"time"

	"github.com/LENAX/async-actions/pkg/core/target"
)

// Status 任务状态（对外导出）
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusReceived Status = "RECEIVED"
	StatusStarted  Status = "STARTED"
	StatusRetry    Status = "RETRY"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusRevoked  Status = "REVOKED"
)

// AllStatuses 所有合法状态
var AllStatuses = []Status{
	StatusPending, StatusReceived, StatusStarted, StatusRetry,
	StatusSuccess, StatusFailure, StatusRevoked,
}

// IsValid 是否为合法状态
func (s Status) IsValid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsReady 终态：SUCCESS/FAILURE/REVOKED
func (s Status) IsReady() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusRevoked
}

// IsUnready 非终态
func (s Status) IsUnready() bool {
	return s.IsValid() && !s.IsReady()
}

// IsPropagating 会向下游传播的失败状态
func (s Status) IsPropagating() bool {
	return s == StatusFailure || s == StatusRevoked
}

// IsException 异常状态，可能携带 traceback
func (s Status) IsException() bool {
	return s == StatusRetry || s == StatusFailure || s == StatusRevoked
}

// KeepsTraceback 是否保存 traceback
func (s Status) KeepsTraceback() bool {
	return s == StatusRetry || s == StatusFailure
}

// TaskState 每个提交的叶子任务对应一条状态记录（对外导出）
type TaskState struct {
	ID          int64     `json:"id" db:"id"`
	TaskID      string    `json:"task_id" db:"task_id"`
	TaskName    string    `json:"task_name" db:"task_name"`
	VerboseName string    `json:"verbose_name" db:"verbose_name"`
	Status      Status    `json:"status" db:"status"`
	TargetType  string    `json:"target_type" db:"target_type"` // 类型标签 namespace.Type
	TargetID    string    `json:"target_id" db:"target_id"`
	Traceback   string    `json:"traceback,omitempty" db:"traceback"`
	CreatedTime time.Time `json:"created_time" db:"created_time"`
	UpdatedTime time.Time `json:"updated_time" db:"updated_time"`
}

// Target 返回目标引用
func (s *TaskState) Target() target.Ref {
	ref, err := target.ParseRef(s.TargetType, s.TargetID)
	if err != nil {
		return target.Ref{Type: s.TargetType, ID: s.TargetID}
	}
	return ref
}

// LastTracebackLine 返回 traceback 的最后一个非空行
func (s *TaskState) LastTracebackLine() string {
	return LastLine(s.Traceback)
}

// LastLine 返回文本最后一个非空行
func LastLine(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// Level 备注级别（对外导出）
type Level int

const (
	LevelDebug   Level = 10
	LevelInfo    Level = 20
	LevelSuccess Level = 25
	LevelWarning Level = 30
	LevelError   Level = 40
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel 由名称解析级别，未知名称返回 LevelInfo
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "success":
		return LevelSuccess
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Note 任务运行期间追加的备注，只增不改（对外导出）
type Note struct {
	ID          int64     `json:"id" db:"id"`
	TaskStateID int64     `json:"task_state_id" db:"task_state_id"`
	Level       Level     `json:"level" db:"level"`
	Text        string    `json:"note" db:"note"`
	CreatedTime time.Time `json:"created_time" db:"created_time"`
}
