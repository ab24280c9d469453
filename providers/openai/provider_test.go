package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/types"
)

func chatReq(text string) *llm.ChatRequest {
	return &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: text}},
	}
}

// TestCompletionParsesResponse verifies text, usage and model extraction from
// a well-formed chat completion body.
func TestCompletionParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "my-model", body["model"])

		fmt.Fprint(w, `{
			"id": "cmpl-1",
			"model": "my-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 4, "completion_tokens": 2, "total_tokens": 6}
		}`)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "my-model"}, nil)
	resp, err := p.Completion(context.Background(), chatReq("hi"))
	require.NoError(t, err)

	assert.Equal(t, "hello", llm.FirstChoiceText(resp))
	assert.Equal(t, "my-model", resp.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

// TestCompletionRequestModelWins verifies the request model overrides the
// configured one.
func TestCompletionRequestModelWins(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		fmt.Fprint(w, `{"id":"x","model":"other","choices":[]}`)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, Model: "configured"}, nil)
	req := chatReq("hi")
	req.Model = "override"
	_, err := p.Completion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "override", gotModel)
}

// TestCompletionErrorMapping verifies HTTP statuses map to structured error
// codes with the expected retryability.
func TestCompletionErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusUnauthorized, types.ErrInvalidRequest, false},
		{http.StatusServiceUnavailable, types.ErrProviderUnavailable, true},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"error":{"message":"boom"}}`)
			}))
			defer srv.Close()

			p := New(Config{BaseURL: srv.URL}, nil)
			_, err := p.Completion(context.Background(), chatReq("hi"))
			require.Error(t, err)
			assert.Equal(t, tc.code, types.GetErrorCode(err))
			assert.Equal(t, tc.retryable, types.IsRetryable(err))
		})
	}
}

// TestCompletionConnectionRefused verifies transport failures surface as a
// retryable provider-unavailable error.
func TestCompletionConnectionRefused(t *testing.T) {
	p := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := p.Completion(context.Background(), chatReq("hi"))
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

// TestStreamDeliversDeltas verifies SSE lines become ordered delta chunks and
// the channel closes on [DONE].
func TestStreamDeliversDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL}, nil)
	ch, err := p.Stream(context.Background(), chatReq("hi"))
	require.NoError(t, err)

	var text string
	var finish string
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		text += chunk.Delta.Content
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "stop", finish)
}

// TestStreamErrorStatus verifies a failing status before any chunk is
// returned as an error, not on the channel.
func TestStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL}, nil)
	_, err := p.Stream(context.Background(), chatReq("hi"))
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}
