package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquireCounter 成功获取的锁数量
	LockAcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_lock_acquired_total",
		Help: "Total number of locks acquired",
	})
	// LockOccupiedCounter 因锁被占用而失败的获取次数
	LockOccupiedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_lock_occupied_total",
		Help: "Total number of lock acquisitions rejected because a lock was held",
	})
	// LockReleaseCounter 释放的锁数量
	LockReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_lock_released_total",
		Help: "Total number of locks released",
	})
	// TaskStatusCounter 按状态统计的任务状态迁移
	TaskStatusCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "async_actions_task_status_total",
		Help: "Task status transitions by status",
	}, []string{"status"})
	// BatchSubmitCounter 提交的批次数量
	BatchSubmitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_batch_submitted_total",
		Help: "Total number of submitted batches",
	})
	// LockedObjectCounter 因锁冲突被跳过的对象数量
	LockedObjectCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_locked_objects_total",
		Help: "Total number of objects skipped because they were locked",
	})
	// MessageRefreshCounter 轮询中返回的已变化消息数量
	MessageRefreshCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_message_refresh_total",
		Help: "Total number of changed messages returned to pollers",
	})
	// DroppedEventCounter 订阅方消费过慢而丢弃的状态事件数量
	DroppedEventCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "async_actions_dropped_events_total",
		Help: "Total number of status events dropped for slow subscribers",
	})
	// RunningTasksGauge 当前正在执行的任务数
	RunningTasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "async_actions_running_tasks",
		Help: "Current number of task handlers executing",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics 在给定注册表上注册全部指标
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		LockAcquireCounter,
		LockOccupiedCounter,
		LockReleaseCounter,
		TaskStatusCounter,
		BatchSubmitCounter,
		LockedObjectCounter,
		MessageRefreshCounter,
		DroppedEventCounter,
		RunningTasksGauge,
	)
}
