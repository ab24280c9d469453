package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/answerflow/types"
)

// Handle 选择 Gateway 中的模型档位。
type Handle string

const (
	// HandlePrimary 主模型：最终生成与问题分解（质量优先）
	HandlePrimary Handle = "primary"
	// HandleFast 快模型：批量文档校验与查询改写（延迟/成本优先）
	HandleFast Handle = "fast"
)

// GatewayConfig Gateway 配置。
type GatewayConfig struct {
	// PrimaryModel 主模型名称
	PrimaryModel string
	// FastModel 快模型名称
	FastModel string
	// CallTimeout 单次调用超时（0 表示不限制）
	CallTimeout time.Duration
	// FastCallsPerSecond 快模型扇出调用限速（0 表示不限速）
	FastCallsPerSecond float64
	// FastBurst 快模型限速突发额度
	FastBurst int
	// Retry 重试策略（nil 使用默认）
	Retry *RetryPolicy
	// Temperature 生成温度
	Temperature float32
}

// DefaultGatewayConfig 返回默认配置。
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		CallTimeout:        30 * time.Second,
		FastCallsPerSecond: 16,
		FastBurst:          32,
		Temperature:        0,
	}
}

// Gateway 将主/快两个 Provider 打包为编排层使用的统一入口，
// 内置单次调用超时、快模型限流与指数退避重试。
type Gateway struct {
	primary Provider
	fast    Provider
	cfg     GatewayConfig
	limiter *rate.Limiter
	retryer *retryer
	logger  *zap.Logger
}

// NewGateway 创建 Gateway。fast 为 nil 时退化为 primary 单模型。
func NewGateway(primary, fast Provider, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fast == nil {
		fast = primary
	}
	var limiter *rate.Limiter
	if cfg.FastCallsPerSecond > 0 {
		burst := cfg.FastBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.FastCallsPerSecond), burst)
	}
	return &Gateway{
		primary: primary,
		fast:    fast,
		cfg:     cfg,
		limiter: limiter,
		retryer: newRetryer(cfg.Retry, logger),
		logger:  logger.With(zap.String("component", "llm_gateway")),
	}
}

func (g *Gateway) provider(h Handle) (Provider, string) {
	if h == HandleFast {
		return g.fast, g.cfg.FastModel
	}
	return g.primary, g.cfg.PrimaryModel
}

// Invoke 同步调用指定档位模型并返回首个 choice 文本。
// 所有失败（超时、上游错误）均转换为 *types.Error，由调用点决定降级策略。
func (g *Gateway) Invoke(ctx context.Context, h Handle, messages []Message) (string, error) {
	provider, model := g.provider(h)
	if provider == nil {
		return "", types.NewError(types.ErrProviderUnavailable, "no provider configured")
	}

	if h == HandleFast && g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", types.NewError(types.ErrRateLimited, "rate limit wait aborted").WithCause(err)
		}
	}

	req := &ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
	}

	start := time.Now()
	resp, err := g.retryer.do(ctx, func() (*ChatResponse, error) {
		callCtx := ctx
		if g.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()
		}
		resp, err := provider.Completion(callCtx, req)
		if err != nil {
			return nil, classify(err, provider.Name())
		}
		return resp, nil
	})
	if err != nil {
		g.logger.Warn("llm invoke failed",
			zap.String("handle", string(h)),
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	g.logger.Debug("llm invoke completed",
		zap.String("handle", string(h)),
		zap.String("model", model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return FirstChoiceText(resp), nil
}

// Stream 发起流式调用。流式路径不做重试：部分输出可能已送达调用方。
func (g *Gateway) Stream(ctx context.Context, h Handle, messages []Message) (<-chan StreamChunk, error) {
	provider, model := g.provider(h)
	if provider == nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "no provider configured")
	}

	req := &ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
	}
	ch, err := provider.Stream(ctx, req)
	if err != nil {
		return nil, classify(err, provider.Name())
	}
	return ch, nil
}

// classify 将 provider 原始错误归一化为 *types.Error。
func classify(err error, provider string) error {
	var typed *types.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "provider call timed out").
			WithCause(err).WithRetryable(true)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrUpstreamTimeout, "provider call cancelled").WithCause(err)
	}
	return types.NewError(types.ErrUpstreamError, "provider "+provider+" failed").
		WithCause(err).WithRetryable(true)
}
