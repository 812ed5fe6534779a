// Package realtime 状态事件订阅方使用的有界缓冲区
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/LENAX/async-actions/pkg/core/state"
)

// Buffer 状态事件缓冲区
// 入队永不阻塞，满时丢弃新事件，状态落库不受慢订阅方影响
type Buffer struct {
	data         chan *state.StatusEvent
	capacity     int
	threshold    float64
	backpressure int32 // atomic，0=正常，1=背压

	// 统计
	totalIn  int64 // atomic
	totalOut int64 // atomic
	dropped  int64 // atomic

	onBackpressure func(usage float64)
	onDrop         func(ev *state.StatusEvent)

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewBuffer 创建缓冲区，threshold 为触发背压回调的使用率
func NewBuffer(capacity int, threshold float64) *Buffer {
	if capacity <= 0 {
		capacity = 64
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Buffer{
		data:      make(chan *state.StatusEvent, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// OnBackpressure 使用率越过阈值时回调一次，回落后可再次触发
func (b *Buffer) OnBackpressure(fn func(usage float64)) *Buffer {
	b.onBackpressure = fn
	return b
}

// OnDrop 丢弃事件时回调
func (b *Buffer) OnDrop(fn func(ev *state.StatusEvent)) *Buffer {
	b.onDrop = fn
	return b
}

// Push 非阻塞入队，返回 false 表示事件被丢弃
func (b *Buffer) Push(ev *state.StatusEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.data <- ev:
		atomic.AddInt64(&b.totalIn, 1)
		b.checkBackpressure()
		return true
	default:
		atomic.AddInt64(&b.dropped, 1)
		if b.onDrop != nil {
			b.onDrop(ev)
		}
		return false
	}
}

// C 出队通道，Close 后读完剩余事件即关闭
func (b *Buffer) C() <-chan *state.StatusEvent {
	return b.data
}

// Ack 消费方取走一个事件后调用，用于统计和背压状态恢复
func (b *Buffer) Ack() {
	atomic.AddInt64(&b.totalOut, 1)
	b.checkBackpressure()
}

// Close 关闭缓冲区，之后的 Push 全部丢弃
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.data)
		b.mu.Unlock()
	})
}

// Len 当前长度
func (b *Buffer) Len() int {
	return len(b.data)
}

// Usage 使用率
func (b *Buffer) Usage() float64 {
	return float64(len(b.data)) / float64(b.capacity)
}

// IsBackpressure 是否处于背压状态
func (b *Buffer) IsBackpressure() bool {
	return atomic.LoadInt32(&b.backpressure) == 1
}

func (b *Buffer) checkBackpressure() {
	usage := b.Usage()
	if usage >= b.threshold {
		if atomic.CompareAndSwapInt32(&b.backpressure, 0, 1) && b.onBackpressure != nil {
			b.onBackpressure(usage)
		}
		return
	}
	atomic.CompareAndSwapInt32(&b.backpressure, 1, 0)
}

// Stats 返回入队、出队、丢弃数
func (b *Buffer) Stats() (totalIn, totalOut, dropped int64) {
	return atomic.LoadInt64(&b.totalIn), atomic.LoadInt64(&b.totalOut), atomic.LoadInt64(&b.dropped)
}
