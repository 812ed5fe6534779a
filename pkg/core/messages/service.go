package messages

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/metrics"
	"github.com/LENAX/async-actions/pkg/storage"
)

// Service 状态消息构建与刷新（对外导出）
type Service struct {
	store    storage.TaskStateRepository
	renderer *Renderer
	logger   watermill.LoggerAdapter
}

// NewService 创建消息服务
func NewService(store storage.TaskStateRepository, renderer *Renderer, logger watermill.LoggerAdapter) *Service {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Service{store: store, renderer: renderer, logger: logger}
}

// Build 由状态和备注构建消息
func (s *Service) Build(st *state.TaskState, notes []*state.Note) (*Message, error) {
	checksum := Checksum(st, len(notes))
	html, err := s.renderer.Render(st, notes, checksum)
	if err != nil {
		return nil, err
	}
	return &Message{
		TaskID:    st.TaskID,
		Level:     LevelFor(st.Status),
		StatusTag: StatusTagFor(st.Status),
		HTML:      html,
		Checksum:  checksum,
	}, nil
}

// Get 加载任务状态并构建消息
func (s *Service) Get(ctx context.Context, taskID string) (*Message, error) {
	st, err := s.store.GetTaskState(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, st)
}

// BuildAll 为一批状态构建消息，保持输入顺序
func (s *Service) BuildAll(ctx context.Context, states []*state.TaskState) ([]*Message, error) {
	out := make([]*Message, 0, len(states))
	for _, st := range states {
		msg, err := s.load(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, st *state.TaskState) (*Message, error) {
	notes, err := s.store.ListNotes(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("加载任务备注失败: %w", err)
	}
	return s.Build(st, notes)
}

// Reconcile 对比客户端上次看到的指纹，只返回发生变化的消息（对外导出）
// 未知的任务ID直接跳过
func (s *Service) Reconcile(ctx context.Context, seen map[string]string) (map[string]*Message, error) {
	if len(seen) == 0 {
		return map[string]*Message{}, nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	states, err := s.store.ListTaskStates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("加载任务状态失败: %w", err)
	}

	changed := make(map[string]*Message)
	for _, st := range states {
		count, err := s.store.CountNotes(ctx, st.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.logger.Error("统计备注数量失败", err, watermill.LogFields{"task_id": st.TaskID})
			continue
		}
		if Checksum(st, count) == seen[st.TaskID] {
			continue
		}
		msg, err := s.load(ctx, st)
		if err != nil {
			return nil, err
		}
		changed[st.TaskID] = msg
	}
	metrics.MessageRefreshCounter.Add(float64(len(changed)))
	return changed, nil
}
