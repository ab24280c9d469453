// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按提示词路由、流式输出与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/answerflow/llm"
)

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response     string
	streamChunks []string
	err          error

	// 路由规则：提示词包含 Contains 子串时返回 Response。
	// 按注册顺序匹配，未命中则落回固定响应。
	routes []promptRoute

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFunc     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	// 行为控制
	delay     time.Duration // 模拟延迟
	failAfter int           // 在第 N 次调用后失败
	callCount int
}

type promptRoute struct {
	Contains string
	Response string
	Err      error
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// Prompt 返回该次调用的完整提示词文本（所有消息拼接）。
func (c MockProviderCall) Prompt() string {
	if c.Request == nil {
		return ""
	}
	var b strings.Builder
	for _, m := range c.Request.Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithRoute 注册路由规则：提示词包含 contains 子串时返回 response。
func (m *MockProvider) WithRoute(contains, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, promptRoute{Contains: contains, Response: response})
	return m
}

// WithRouteError 注册路由规则：提示词包含 contains 子串时返回错误。
func (m *MockProvider) WithRouteError(contains string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, promptRoute{Contains: contains, Err: err})
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks []string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithStreamFunc 设置自定义 Stream 函数
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	if m.delay > 0 {
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			m.mu.Lock()
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
		m.mu.Lock()
	}

	// 检查是否应该失败
	if m.failAfter > 0 && m.callCount > m.failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
		return nil, err
	}

	// 检查是否有预设错误
	if m.err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: m.err})
		return nil, m.err
	}

	// 使用自定义函数
	if m.completionFunc != nil {
		resp, err := m.completionFunc(ctx, req)
		m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	// 路由匹配
	content := m.response
	if route, ok := m.matchRoute(req); ok {
		if route.Err != nil {
			m.calls = append(m.calls, MockProviderCall{Request: req, Error: route.Err})
			return nil, route.Err
		}
		content = route.Response
	}

	resp := &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: llm.Message{
					Role:    llm.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}

	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	if m.err != nil {
		return nil, m.err
	}

	if m.streamFunc != nil {
		return m.streamFunc(ctx, req)
	}

	// 确定响应内容：优先路由，再流式块，最后固定响应
	chunks := m.streamChunks
	if route, ok := m.matchRoute(req); ok {
		if route.Err != nil {
			return nil, route.Err
		}
		chunks = []string{route.Response}
	}
	if len(chunks) == 0 {
		chunks = []string{m.response}
	}
	m.calls = append(m.calls, MockProviderCall{Request: req})

	ch := make(chan llm.StreamChunk, len(chunks))
	go func() {
		defer close(ch)
		for i, chunk := range chunks {
			finish := ""
			if i == len(chunks)-1 {
				finish = "stop"
			}
			select {
			case <-ctx.Done():
				return
			case ch <- llm.StreamChunk{
				ID:    "mock-chunk-id",
				Model: req.Model,
				Delta: llm.Message{
					Role:    llm.RoleAssistant,
					Content: chunk,
				},
				FinishReason: finish,
			}:
			}
		}
	}()

	return ch, nil
}

// matchRoute 按注册顺序匹配提示词路由。调用方需持有锁。
func (m *MockProvider) matchRoute(req *llm.ChatRequest) (promptRoute, bool) {
	prompt := MockProviderCall{Request: req}.Prompt()
	for _, r := range m.routes {
		if strings.Contains(prompt, r.Contains) {
			return r, true
		}
	}
	return promptRoute{}, false
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 获取最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset 重置所有状态
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewStreamProvider 创建流式响应的 Provider
func NewStreamProvider(chunks []string) *MockProvider {
	return NewMockProvider().WithStreamChunks(chunks)
}
