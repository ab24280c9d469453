package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/types"
)

// RetryPolicy 定义重试策略配置。
type RetryPolicy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 初始延迟时间
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加随机抖动（防止雪崩）
}

// DefaultRetryPolicy 返回默认的重试策略，适用于大部分 LLM API 调用场景。
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

type retryer struct {
	policy *RetryPolicy
	logger *zap.Logger
}

func newRetryer(policy *RetryPolicy, logger *zap.Logger) *retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 8 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryer{policy: policy, logger: logger}
}

// do 执行 fn，失败且错误可重试时按指数退避重试。
func (r *retryer) do(ctx context.Context, fn func() (*ChatResponse, error)) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, types.NewError(types.ErrUpstreamTimeout, "retry cancelled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (r *retryer) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}
