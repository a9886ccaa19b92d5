package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "z-song-ai-api/pkg/errors"
	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
)

// BreakerState 熔断器状态快照
type BreakerState struct {
	Name                string        `json:"name"`
	Open                bool          `json:"open"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
	Threshold           int           `json:"threshold"`
	Cooldown            time.Duration `json:"cooldown"`
}

// Breaker 两态熔断器：连续失败达到阈值后在冷却期内直接拒绝；
// 冷却期过后放行一次试探调用，成功则闭合，失败则重新打开并重置冷却。
// 状态由互斥锁保护，同一实例可被并发请求共享。
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	counts    func(error) bool

	mu            sync.Mutex
	failures      int
	lastFailure   time.Time
	trialInFlight bool
}

// BreakerOption 熔断器可选项
type BreakerOption func(*Breaker)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithFailureFilter 只有 counts 返回 true 的错误计入连续失败；其余错误既不计数也不重置计数
func WithFailureFilter(counts func(error) bool) BreakerOption {
	return func(b *Breaker) {
		b.counts = counts
	}
}

// NewBreaker 创建熔断器；threshold <= 0 时按 1 处理
func NewBreaker(name string, threshold int, cooldown time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.BreakerOpen.WithLabelValues(name).Set(0)
	return b
}

// Name 熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// Execute 在熔断保护下执行 op。熔断打开时返回 ErrBreakerOpen 且不调用 op。
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	trial, err := b.acquire()
	if err != nil {
		metrics.BreakerRejections.WithLabelValues(b.name).Inc()
		return err
	}

	// op panic 时按失败记录并释放试探名额，再继续向上 panic
	defer func() {
		if r := recover(); r != nil {
			b.record(ctx, trial, fmt.Errorf("breaker %s: operation panicked: %v", b.name, r))
			panic(r)
		}
	}()

	opErr := op(ctx)
	b.record(ctx, trial, opErr)
	return opErr
}

func (b *Breaker) acquire() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return false, nil
	}
	if b.now().Sub(b.lastFailure) < b.cooldown || b.trialInFlight {
		return false, apperrors.ErrBreakerOpen.WithDetail(b.name)
	}
	b.trialInFlight = true
	return true, nil
}

func (b *Breaker) record(ctx context.Context, trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	// 调用方主动取消不代表后端故障，不计入失败
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}
	if err != nil && b.counts != nil && !b.counts(err) {
		return
	}

	if err == nil {
		if b.failures >= b.threshold {
			logger.Info(ctx, "circuit breaker closed", "breaker", b.name)
		}
		b.failures = 0
		metrics.BreakerOpen.WithLabelValues(b.name).Set(0)
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		metrics.BreakerOpen.WithLabelValues(b.name).Set(1)
		logger.Warn(ctx, "circuit breaker open",
			"breaker", b.name,
			"consecutive_failures", b.failures,
			"cooldown_ms", b.cooldown.Milliseconds(),
			"error", err.Error(),
		)
	}
}

// State 返回当前状态快照
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		Name:                b.name,
		Open:                b.failures >= b.threshold && b.now().Sub(b.lastFailure) < b.cooldown,
		ConsecutiveFailures: b.failures,
		LastFailure:         b.lastFailure,
		Threshold:           b.threshold,
		Cooldown:            b.cooldown,
	}
}

// Reset 强制闭合
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.lastFailure = time.Time{}
	b.trialInFlight = false
	metrics.BreakerOpen.WithLabelValues(b.name).Set(0)
}

// IsBreakerOpen 判断错误是否为熔断拒绝
func IsBreakerOpen(err error) bool {
	return errors.Is(err, apperrors.ErrBreakerOpen)
}
