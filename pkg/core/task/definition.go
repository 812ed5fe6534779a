package task

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy 锁冲突时的重试策略（对外导出）
type RetryPolicy struct {
	Delay      time.Duration `yaml:"delay" json:"delay"`             // 首次重试延迟
	Backoff    float64       `yaml:"backoff" json:"backoff"`         // 指数退避系数，<=0 表示固定延迟
	MaxDelay   time.Duration `yaml:"max_delay" json:"max_delay"`     // 退避上限
	MaxRetries int           `yaml:"max_retries" json:"max_retries"` // 最大重试次数
	Jitter     bool          `yaml:"jitter" json:"jitter"`           // 随机抖动
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delay:      time.Second,
		Backoff:    2,
		MaxDelay:   time.Minute,
		MaxRetries: 12,
		Jitter:     true,
	}
}

// IsZero 是否未配置
func (p RetryPolicy) IsZero() bool {
	return p == RetryPolicy{}
}

// Countdown 第 retries 次重试前的等待时间（retries 从0开始）
func (p RetryPolicy) Countdown(retries int) time.Duration {
	d := p.Delay
	if p.Backoff > 0 {
		f := float64(p.Delay)
		for i := 0; i < retries; i++ {
			f *= p.Backoff
			if p.MaxDelay > 0 && f >= float64(p.MaxDelay) {
				f = float64(p.MaxDelay)
				break
			}
		}
		d = time.Duration(f)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 1 {
		// [d/2, d]
		half := int64(d / 2)
		d = time.Duration(half + rand.Int64N(int64(d)-half+1))
	}
	return d
}

// Exhausted 是否已用尽重试次数
func (p RetryPolicy) Exhausted(retries int) bool {
	return retries >= p.MaxRetries
}

// RetryExhaustedError 锁冲突重试次数用尽（对外导出）
type RetryExhaustedError struct {
	TaskID  string
	Retries int
	Err     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("任务 %s 重试 %d 次后仍无法获取锁: %v", e.TaskID, e.Retries, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Definition 任务定义（对外导出）
type Definition struct {
	Name        string
	VerboseName string
	Description string
	Func        Func
	// LockRetry 锁冲突重试策略，零值使用 Runtime 的默认策略
	LockRetry RetryPolicy
}

// Define 创建任务定义
func Define(name string, fn Func) *Definition {
	return &Definition{Name: name, Func: fn}
}

// DefineFunc 由任意支持的函数签名创建任务定义
func DefineFunc(name string, fn any) (*Definition, error) {
	f, err := WrapFunc(fn)
	if err != nil {
		return nil, fmt.Errorf("包装任务 %s 失败: %w", name, err)
	}
	return Define(name, f), nil
}

// WithVerboseName 设置显示名称
func (d *Definition) WithVerboseName(name string) *Definition {
	d.VerboseName = name
	return d
}

// WithDescription 设置描述
func (d *Definition) WithDescription(desc string) *Definition {
	d.Description = desc
	return d
}

// WithLockRetry 设置锁冲突重试策略
func (d *Definition) WithLockRetry(p RetryPolicy) *Definition {
	d.LockRetry = p
	return d
}
