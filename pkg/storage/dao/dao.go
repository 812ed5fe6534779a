package dao

import "time"

// GroupResultDAO async_actions_group_result 表的数据访问对象（内部使用）
type GroupResultDAO struct {
	ID          string    `db:"id"`
	TaskIDs     string    `db:"task_ids"` // JSON格式存储
	CreatedTime time.Time `db:"created_time"`
}
