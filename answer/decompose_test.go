package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/testutil/mocks"
	"github.com/BaSui01/answerflow/types"
)

func testGateway(p llm.Provider) *llm.Gateway {
	return llm.NewGateway(p, p, llm.GatewayConfig{
		Retry: &llm.RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2},
	}, nil)
}

// TestDecomposeParsesStructuredOutput verifies the JSON path with search
// queries and index assignment.
func TestDecomposeParsesStructuredOutput(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`[{"question":"Who created Excel?","search_query":"Excel creator"},
		  {"question":"What other products did they make?"}]`)
	d := NewDecomposer(testGateway(provider), llm.HandlePrimary, 3, nil)

	got := d.Decompose(context.Background(), "who made excel and what else")
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, "Excel creator", got[0].SearchQuery)
	assert.Equal(t, 1, got[1].Index)
	// Missing search query falls back to the question text.
	assert.Equal(t, got[1].Text, got[1].SearchQuery)
}

// TestDecomposeCapsDegree verifies the max bound.
func TestDecomposeCapsDegree(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`[{"question":"a"},{"question":"b"},{"question":"c"},{"question":"d"}]`)
	d := NewDecomposer(testGateway(provider), llm.HandlePrimary, 2, nil)

	got := d.Decompose(context.Background(), "q")
	assert.Len(t, got, 2)
}

// TestDecomposeFallbackOnCallFailure verifies a provider failure degrades to
// the original question as the sole sub-question.
func TestDecomposeFallbackOnCallFailure(t *testing.T) {
	provider := mocks.NewErrorProvider(errors.New("model down"))
	d := NewDecomposer(testGateway(provider), llm.HandlePrimary, 3, nil)

	got := d.Decompose(context.Background(), "who made excel")
	require.Len(t, got, 1)
	assert.Equal(t, "who made excel", got[0].Text)
	assert.Equal(t, "who made excel", got[0].SearchQuery)
}

// TestDecomposeFallbackOnUnparsableOutput verifies empty output degrades the
// same way.
func TestDecomposeFallbackOnUnparsableOutput(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("  \n ")
	d := NewDecomposer(testGateway(provider), llm.HandlePrimary, 3, nil)

	got := d.Decompose(context.Background(), "who made excel")
	require.Len(t, got, 1)
	assert.Equal(t, "who made excel", got[0].Text)
}

// TestDecomposeDeepIncludesHistory verifies the second-pass prompt marks
// which sub-questions already succeeded.
func TestDecomposeDeepIncludesHistory(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(`[{"question":"gap question"}]`)
	d := NewDecomposer(testGateway(provider), llm.HandlePrimary, 3, nil)

	previous := []types.SubQuestionAnswer{
		{Question: types.SubQuestion{Text: "answered one"}, Answer: "fact", Verdict: types.VerdictYes},
		{Question: types.SubQuestion{Text: "failed one"}, Verdict: types.VerdictNo},
	}
	got := d.DecomposeDeep(context.Background(), "who made excel", previous)
	require.Len(t, got, 1)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	prompt := call.Prompt()
	assert.Contains(t, prompt, "[answered] answered one")
	assert.Contains(t, prompt, "[unanswered] failed one")
}
