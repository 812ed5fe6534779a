package dto

// TargetRequest 目标对象
type TargetRequest struct {
	Type string `json:"type" binding:"required"` // 如 "shop.Order"
	ID   string `json:"id" binding:"required"`
}

// RunActionRequest 运行操作请求
type RunActionRequest struct {
	Targets     []TargetRequest        `json:"targets" binding:"required,min=1,dive"`
	Params      map[string]interface{} `json:"params" binding:"omitempty"`
	Permissions []string               `json:"permissions" binding:"omitempty"`
}

// MessagePollEntry 客户端上次看到的消息
type MessagePollEntry struct {
	MsgID    string `json:"msg_id"`
	Checksum string `json:"checksum"`
}

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
