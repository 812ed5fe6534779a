package storage

import (
	"context"
	"time"

	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
)

// TaskStateRepository TaskState 及其备注的存储接口（对外导出）
type TaskStateRepository interface {
	// CreateTaskStates 在一个事务内批量创建状态记录，并回填自增ID
	CreateTaskStates(ctx context.Context, states []*state.TaskState) error
	// GetTaskState 按任务ID查询，不存在时返回 state.ErrTaskStateNotFound
	GetTaskState(ctx context.Context, taskID string) (*state.TaskState, error)
	// ListTaskStates 按任务ID批量查询，不存在的ID被忽略
	ListTaskStates(ctx context.Context, taskIDs []string) ([]*state.TaskState, error)
	// ListTaskStatesByTarget 按目标查询，按创建时间倒序，limit<=0 表示不限制
	ListTaskStatesByTarget(ctx context.Context, ref target.Ref, limit int) ([]*state.TaskState, error)
	// UpdateTaskStatus 原地更新状态和 traceback
	UpdateTaskStatus(ctx context.Context, taskID string, status state.Status, traceback string) error
	// DeleteTaskState 删除状态记录，备注级联删除
	DeleteTaskState(ctx context.Context, taskID string) error

	// AddNote 追加备注
	AddNote(ctx context.Context, taskStateID int64, level state.Level, text string) (*state.Note, error)
	// ListNotes 按创建顺序列出备注
	ListNotes(ctx context.Context, taskStateID int64) ([]*state.Note, error)
	// CountNotes 备注数量
	CountNotes(ctx context.Context, taskStateID int64) (int, error)
}

// GroupResult 一次提交的结果句柄（对外导出）
type GroupResult struct {
	ID          string    `json:"id"`
	TaskIDs     []string  `json:"task_ids"`
	CreatedTime time.Time `json:"created_time"`
}

// GroupResultRepository 提交结果句柄的存储接口
type GroupResultRepository interface {
	SaveGroupResult(ctx context.Context, result *GroupResult) error
	// GetGroupResult 不存在时返回 ErrNotFound
	GetGroupResult(ctx context.Context, id string) (*GroupResult, error)
}

// Repository 全部存储能力的聚合（对外导出）
type Repository interface {
	lock.Store
	TaskStateRepository
	GroupResultRepository
	Close() error
}
