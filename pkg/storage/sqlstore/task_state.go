package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
)

const taskStateColumns = "id, task_id, task_name, verbose_name, status, target_type, target_id, traceback, created_time, updated_time"

// insertReturningID 执行插入并返回自增ID
func (s *Store) insertReturningID(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	if s.dialect.SupportsReturning() {
		var id int64
		if err := ext.QueryRowxContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := ext.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateTaskStates 在一个事务内批量创建状态记录
func (s *Store) CreateTaskStates(ctx context.Context, states []*state.TaskState) error {
	if len(states) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO %s (task_id, task_name, verbose_name, status, target_type, target_id, traceback, created_time, updated_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableTaskState)
	now := time.Now().UTC()
	for _, st := range states {
		if st.Status == "" {
			st.Status = state.StatusPending
		}
		st.CreatedTime, st.UpdatedTime = now, now
		id, err := s.insertReturningID(ctx, tx, query,
			st.TaskID, st.TaskName, st.VerboseName, string(st.Status),
			st.TargetType, st.TargetID, st.Traceback, st.CreatedTime, st.UpdatedTime)
		if err != nil {
			return fmt.Errorf("创建任务状态 %s 失败: %w", st.TaskID, err)
		}
		st.ID = id
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// GetTaskState 按任务ID查询
func (s *Store) GetTaskState(ctx context.Context, taskID string) (*state.TaskState, error) {
	var st state.TaskState
	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE task_id = ?", taskStateColumns, tableTaskState))
	if err := s.db.GetContext(ctx, &st, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", state.ErrTaskStateNotFound, taskID)
		}
		return nil, fmt.Errorf("查询任务状态失败: %w", err)
	}
	return &st, nil
}

// ListTaskStates 按任务ID批量查询，结果顺序与 taskIDs 一致
func (s *Store) ListTaskStates(ctx context.Context, taskIDs []string) ([]*state.TaskState, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM %s WHERE task_id IN (?)", taskStateColumns, tableTaskState), taskIDs)
	if err != nil {
		return nil, fmt.Errorf("构造查询失败: %w", err)
	}
	var rows []*state.TaskState
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询任务状态失败: %w", err)
	}
	byID := make(map[string]*state.TaskState, len(rows))
	for _, st := range rows {
		byID[st.TaskID] = st
	}
	out := make([]*state.TaskState, 0, len(rows))
	for _, id := range taskIDs {
		if st, ok := byID[id]; ok {
			out = append(out, st)
			delete(byID, id)
		}
	}
	return out, nil
}

// ListTaskStatesByTarget 按目标查询
func (s *Store) ListTaskStatesByTarget(ctx context.Context, ref target.Ref, limit int) ([]*state.TaskState, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE target_type = ? AND target_id = ? ORDER BY created_time DESC, id DESC", taskStateColumns, tableTaskState)
	args := []any{ref.TypeTag(), ref.ID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []*state.TaskState
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询任务状态失败: %w", err)
	}
	return rows, nil
}

// UpdateTaskStatus 原地更新状态
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status state.Status, traceback string) error {
	query := s.db.Rebind(fmt.Sprintf("UPDATE %s SET status = ?, traceback = ?, updated_time = ? WHERE task_id = ?", tableTaskState))
	res, err := s.db.ExecContext(ctx, query, string(status), traceback, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("更新任务状态失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取影响行数失败: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", state.ErrTaskStateNotFound, taskID)
	}
	return nil
}

// DeleteTaskState 删除状态记录
func (s *Store) DeleteTaskState(ctx context.Context, taskID string) error {
	query := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE task_id = ?", tableTaskState))
	res, err := s.db.ExecContext(ctx, query, taskID)
	if err != nil {
		return fmt.Errorf("删除任务状态失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", state.ErrTaskStateNotFound, taskID)
	}
	return nil
}

// AddNote 追加备注
func (s *Store) AddNote(ctx context.Context, taskStateID int64, level state.Level, text string) (*state.Note, error) {
	note := &state.Note{
		TaskStateID: taskStateID,
		Level:       level,
		Text:        text,
		CreatedTime: time.Now().UTC(),
	}
	query := fmt.Sprintf("INSERT INTO %s (task_state_id, level, note, created_time) VALUES (?, ?, ?, ?)", tableTaskNote)
	id, err := s.insertReturningID(ctx, s.db, query, note.TaskStateID, int(note.Level), note.Text, note.CreatedTime)
	if err != nil {
		return nil, fmt.Errorf("添加备注失败: %w", err)
	}
	note.ID = id
	return note, nil
}

// ListNotes 按创建顺序列出备注
func (s *Store) ListNotes(ctx context.Context, taskStateID int64) ([]*state.Note, error) {
	var notes []*state.Note
	query := s.db.Rebind(fmt.Sprintf("SELECT id, task_state_id, level, note, created_time FROM %s WHERE task_state_id = ? ORDER BY id", tableTaskNote))
	if err := s.db.SelectContext(ctx, &notes, query, taskStateID); err != nil {
		return nil, fmt.Errorf("查询备注失败: %w", err)
	}
	return notes, nil
}

// CountNotes 备注数量
func (s *Store) CountNotes(ctx context.Context, taskStateID int64) (int, error) {
	var count int
	query := s.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE task_state_id = ?", tableTaskNote))
	if err := s.db.GetContext(ctx, &count, query, taskStateID); err != nil {
		return 0, fmt.Errorf("统计备注失败: %w", err)
	}
	return count, nil
}
