package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/types"
)

// stubProvider is a minimal in-package Provider for gateway tests.
type stubProvider struct {
	name      string
	responses []func() (*ChatResponse, error)
	calls     atomic.Int32
	lastReq   *ChatRequest
}

func (s *stubProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	n := int(s.calls.Add(1)) - 1
	s.lastReq = req
	if n >= len(s.responses) {
		n = len(s.responses) - 1
	}
	return s.responses[n]()
}

func (s *stubProvider) Stream(_ context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	resp, err := s.Completion(context.Background(), req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Delta: Message{Content: FirstChoiceText(resp)}, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (s *stubProvider) Name() string { return s.name }

func textResponse(text string) func() (*ChatResponse, error) {
	return func() (*ChatResponse, error) {
		return &ChatResponse{Choices: []ChatChoice{{Message: Message{
			Role: RoleAssistant, Content: text,
		}}}}, nil
	}
}

func failWith(err error) func() (*ChatResponse, error) {
	return func() (*ChatResponse, error) { return nil, err }
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

// TestGatewayInvokeReturnsFirstChoice verifies the happy path and model
// selection per handle.
func TestGatewayInvokeReturnsFirstChoice(t *testing.T) {
	primary := &stubProvider{name: "primary", responses: []func() (*ChatResponse, error){textResponse("full answer")}}
	fast := &stubProvider{name: "fast", responses: []func() (*ChatResponse, error){textResponse("yes")}}

	g := NewGateway(primary, fast, GatewayConfig{
		PrimaryModel: "big-model",
		FastModel:    "small-model",
		Retry:        fastRetry(),
	}, nil)

	got, err := g.Invoke(context.Background(), HandlePrimary, []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "full answer", got)
	assert.Equal(t, "big-model", primary.lastReq.Model)

	got, err = g.Invoke(context.Background(), HandleFast, []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "yes", got)
	assert.Equal(t, "small-model", fast.lastReq.Model)
}

// TestGatewayFastFallsBackToPrimary verifies a nil fast provider degrades to
// the primary one.
func TestGatewayFastFallsBackToPrimary(t *testing.T) {
	primary := &stubProvider{name: "primary", responses: []func() (*ChatResponse, error){textResponse("ok")}}
	g := NewGateway(primary, nil, GatewayConfig{Retry: fastRetry()}, nil)

	got, err := g.Invoke(context.Background(), HandleFast, []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(1), primary.calls.Load())
}

// TestGatewayRetriesRetryable verifies a retryable upstream failure is
// retried until success.
func TestGatewayRetriesRetryable(t *testing.T) {
	retryable := types.NewError(types.ErrUpstreamError, "overloaded").WithRetryable(true)
	p := &stubProvider{name: "p", responses: []func() (*ChatResponse, error){
		failWith(retryable),
		failWith(retryable),
		textResponse("recovered"),
	}}

	g := NewGateway(p, nil, GatewayConfig{Retry: fastRetry()}, nil)

	got, err := g.Invoke(context.Background(), HandlePrimary, []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(3), p.calls.Load())
}

// TestGatewayNoRetryOnNonRetryable verifies permanent failures return
// immediately.
func TestGatewayNoRetryOnNonRetryable(t *testing.T) {
	permanent := types.NewError(types.ErrInvalidRequest, "bad prompt")
	p := &stubProvider{name: "p", responses: []func() (*ChatResponse, error){failWith(permanent)}}

	g := NewGateway(p, nil, GatewayConfig{Retry: fastRetry()}, nil)

	_, err := g.Invoke(context.Background(), HandlePrimary, []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Equal(t, int32(1), p.calls.Load())
}

// TestGatewayClassifiesRawErrors verifies unclassified provider errors are
// wrapped as retryable upstream errors, and deadline errors as timeouts.
func TestGatewayClassifiesRawErrors(t *testing.T) {
	err := classify(errors.New("connection reset"), "p")
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	err = classify(context.DeadlineExceeded, "p")
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	typed := types.NewError(types.ErrParseFailure, "x")
	assert.Same(t, typed, classify(typed, "p"))
}

// TestGatewayStreamNoRetry verifies stream setup failures surface without
// retry.
func TestGatewayStreamNoRetry(t *testing.T) {
	p := &stubProvider{name: "p", responses: []func() (*ChatResponse, error){
		failWith(errors.New("boom")),
		textResponse("never reached"),
	}}

	g := NewGateway(p, nil, GatewayConfig{Retry: fastRetry()}, nil)

	_, err := g.Stream(context.Background(), HandlePrimary, []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
}

// TestGatewayStreamDeliversChunks verifies the stream path passes chunks
// through.
func TestGatewayStreamDeliversChunks(t *testing.T) {
	p := &stubProvider{name: "p", responses: []func() (*ChatResponse, error){textResponse("partial")}}
	g := NewGateway(p, nil, GatewayConfig{}, nil)

	ch, err := g.Stream(context.Background(), HandlePrimary, []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)

	var text string
	for chunk := range ch {
		text += chunk.Delta.Content
	}
	assert.Equal(t, "partial", text)
}

// TestRetryerBackoffBounded verifies computed delays never exceed MaxDelay.
func TestRetryerBackoffBounded(t *testing.T) {
	r := newRetryer(&RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   3,
	}, nil)

	for attempt := 1; attempt <= 5; attempt++ {
		assert.LessOrEqual(t, r.delay(attempt), 300*time.Millisecond)
	}
}
