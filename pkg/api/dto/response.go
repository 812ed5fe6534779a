package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// TaskStateSummary 任务状态摘要
type TaskStateSummary struct {
	TaskID      string    `json:"task_id"`
	TaskName    string    `json:"task_name"`
	VerboseName string    `json:"verbose_name"`
	Status      string    `json:"status"`
	Target      string    `json:"target"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NoteDetail 任务备注
type NoteDetail struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageDetail 渲染后的任务消息
type MessageDetail struct {
	Level     string `json:"level"`
	StatusTag string `json:"status_tag"`
	HTML      string `json:"html"`
	Checksum  string `json:"checksum"`
}

// TaskStateDetail 任务状态详情
type TaskStateDetail struct {
	TaskStateSummary
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Traceback  string         `json:"traceback,omitempty"`
	Notes      []NoteDetail   `json:"notes"`
	Message    *MessageDetail `json:"message,omitempty"`
}

// LockSummary 锁信息
type LockSummary struct {
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionSummary 操作信息
type ActionSummary struct {
	Name        string   `json:"name"`
	VerboseName string   `json:"verbose_name"`
	Description string   `json:"description,omitempty"`
	LockMode    string   `json:"lock_mode"`
	Permissions []string `json:"permissions,omitempty"`
	Required    []string `json:"required_params,omitempty"`
	Workflow    string   `json:"workflow"`
	// WorkflowName 工作流显示名称，组合工作流没有显式名称时为其签名
	WorkflowName        string `json:"workflow_name"`
	WorkflowDescription string `json:"workflow_description,omitempty"`
}

// TaskMessage 运行操作后返回给客户端的消息
type TaskMessage struct {
	TaskID string `json:"task_id"`
	MessageDetail
}

// RunActionResponse 运行操作响应
type RunActionResponse struct {
	ResultID  string        `json:"result_id,omitempty"`
	TaskIDs   []string      `json:"task_ids"`
	Submitted []string      `json:"submitted"`
	Locked    []string      `json:"locked"`
	Messages  []TaskMessage `json:"messages"`
}

// GroupResultDetail 提交结果详情
type GroupResultDetail struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Tasks     []TaskStateSummary `json:"tasks"`
	Counts    map[string]int     `json:"counts"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}
