// Package openai implements an llm.Provider for any OpenAI-compatible
// chat completion endpoint (OpenAI, DashScope, vLLM, Ollama, ...).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/providers"
	"github.com/BaSui01/answerflow/types"
)

// Config holds the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Provider talks to a /chat/completions endpoint over HTTP.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a provider. A nil logger is replaced with zap.NewNop().
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "openai" }

// --- OpenAI wire types ---

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      wireMessage  `json:"message"`
	Delta        *wireMessage `json:"delta,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// --- conversions ---

func convertMessages(msgs []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toChatResponse(w wireResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(w.Choices))
	for _, c := range w.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: c.Message.Content},
		})
	}
	resp := &llm.ChatResponse{
		ID:       w.ID,
		Provider: provider,
		Model:    w.Model,
		Choices:  choices,
	}
	if w.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     w.Usage.PromptTokens,
			CompletionTokens: w.Usage.CompletionTokens,
			TotalTokens:      w.Usage.TotalTokens,
		}
	}
	if w.Created != 0 {
		resp.CreatedAt = time.Unix(w.Created, 0)
	}
	return resp
}

func mapError(status int, msg string) *types.Error {
	switch status {
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return types.NewError(types.ErrInvalidRequest, msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return types.NewError(types.ErrProviderUnavailable, msg).WithRetryable(true)
	default:
		e := types.NewError(types.ErrUpstreamError, msg)
		if status >= 500 {
			e = e.WithRetryable(true)
		}
		return e
	}
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var werr wireError
	if err := json.Unmarshal(data, &werr); err == nil && werr.Error.Message != "" {
		return werr.Error.Message
	}
	return string(data)
}

func (p *Provider) buildRequest(ctx context.Context, req *llm.ChatRequest, stream bool) (*http.Request, error) {
	body := wireRequest{
		Model:       providers.ChooseModel(req, p.cfg.Model, "gpt-4o-mini"),
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      stream,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error())
	}
	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error())
	}
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// Completion 发起同步请求并解析完整响应。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, err.Error()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		p.logger.Warn("openai completion failed",
			zap.Int("status", resp.StatusCode),
			zap.String("trace_id", req.TraceID))
		return nil, mapError(resp.StatusCode, msg)
	}

	var w wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithCause(err)
	}
	return toChatResponse(w, p.Name()), nil
}

// Stream 发起 SSE 流式请求，增量写入返回的通道。
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, err.Error()).WithRetryable(true).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapError(resp.StatusCode, readErrMsg(resp.Body))
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					ch <- llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true)}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var w wireResponse
			if err := json.Unmarshal([]byte(data), &w); err != nil {
				ch <- llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true)}
				return
			}
			for _, choice := range w.Choices {
				if choice.Delta == nil {
					continue
				}
				chunk := llm.StreamChunk{
					ID:    w.ID,
					Model: w.Model,
					Delta: llm.Message{
						Role:    llm.RoleAssistant,
						Content: choice.Delta.Content,
					},
					FinishReason: choice.FinishReason,
				}
				if w.Usage != nil {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     w.Usage.PromptTokens,
						CompletionTokens: w.Usage.CompletionTokens,
						TotalTokens:      w.Usage.TotalTokens,
					}
				}
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
