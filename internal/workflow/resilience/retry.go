// Package resilience 提供重试与熔断两种调用装饰器
package resilience

import (
	"context"
	"time"

	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
)

// Classifier 判断错误是否为瞬时错误（可重试）
type Classifier func(err error) bool

// SleepFunc 可注入的等待函数，需响应 ctx 取消
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy 指数退避重试策略。
// MaxRetries 为首次调用之后的最大重试次数；第 n 次重试前等待 InitialDelay * 2^(n-1)。
type Policy struct {
	Name         string
	MaxRetries   int
	InitialDelay time.Duration
	// Classify 为 nil 时所有错误都视为永久错误，不重试
	Classify Classifier

	sleep SleepFunc
}

// NewPolicy 创建重试策略
func NewPolicy(name string, maxRetries int, initialDelay time.Duration, classify Classifier) *Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	return &Policy{
		Name:         name,
		MaxRetries:   maxRetries,
		InitialDelay: initialDelay,
		Classify:     classify,
	}
}

// WithSleep 替换等待函数（测试用）
func (p *Policy) WithSleep(fn SleepFunc) *Policy {
	cp := *p
	cp.sleep = fn
	return &cp
}

// Delay 返回第 retry 次重试（从 1 开始）前的等待时长
func (p *Policy) Delay(retry int) time.Duration {
	if p == nil || retry < 1 || p.InitialDelay <= 0 {
		return 0
	}
	d := p.InitialDelay
	for i := 1; i < retry; i++ {
		d *= 2
	}
	return d
}

// Do 执行 op，瞬时错误按策略重试；永久错误或重试耗尽时原样返回最后一次错误
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry 是 Policy.Do 的泛型版本，返回最后一次成功调用的结果
func Retry[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p == nil {
		return op(ctx)
	}

	for attempt := 0; ; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if attempt >= p.MaxRetries || p.Classify == nil || !p.Classify(err) {
			return zero, err
		}

		retry := attempt + 1
		delay := p.Delay(retry)
		metrics.RetriesTotal.WithLabelValues(p.label()).Inc()
		logger.Warn(ctx, "transient failure, retrying",
			"operation", p.label(),
			"retry", retry,
			"max_retries", p.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		if serr := p.wait(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

func (p *Policy) label() string {
	if p.Name == "" {
		return "unknown"
	}
	return p.Name
}

func (p *Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
