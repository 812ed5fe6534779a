package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LENAX/async-actions/pkg/storage"
	"github.com/LENAX/async-actions/pkg/storage/dao"
)

// SaveGroupResult 保存提交结果句柄
func (s *Store) SaveGroupResult(ctx context.Context, result *storage.GroupResult) error {
	taskIDs, err := json.Marshal(result.TaskIDs)
	if err != nil {
		return fmt.Errorf("序列化任务ID失败: %w", err)
	}
	if result.CreatedTime.IsZero() {
		result.CreatedTime = time.Now().UTC()
	}
	row := dao.GroupResultDAO{ID: result.ID, TaskIDs: string(taskIDs), CreatedTime: result.CreatedTime}
	query := fmt.Sprintf("INSERT INTO %s (id, task_ids, created_time) VALUES (:id, :task_ids, :created_time)", tableGroupResult)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存提交结果失败: %w", err)
	}
	return nil
}

// GetGroupResult 查询提交结果句柄
func (s *Store) GetGroupResult(ctx context.Context, id string) (*storage.GroupResult, error) {
	var row dao.GroupResultDAO
	query := s.db.Rebind(fmt.Sprintf("SELECT id, task_ids, created_time FROM %s WHERE id = ?", tableGroupResult))
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: group result %s", storage.ErrNotFound, id)
		}
		return nil, fmt.Errorf("查询提交结果失败: %w", err)
	}
	result := &storage.GroupResult{ID: row.ID, CreatedTime: row.CreatedTime}
	if err := json.Unmarshal([]byte(row.TaskIDs), &result.TaskIDs); err != nil {
		return nil, fmt.Errorf("解析任务ID失败: %w", err)
	}
	return result, nil
}
