package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/testutil/mocks"
	"github.com/BaSui01/answerflow/types"
)

// TestVerifyAccepts verifies a "yes" answer keeps the section.
func TestVerifyAccepts(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("Yes, this is relevant.")
	v := NewVerifier(newGateway(provider), "", nil)

	got := v.Verify(context.Background(), "who made excel", mocks.Section("doc-a", "Microsoft released Excel in 1985.", 0.9))
	assert.Equal(t, types.VerdictYes, got)
}

// TestVerifyRejects verifies a "no" answer excludes the section.
func TestVerifyRejects(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("no")
	v := NewVerifier(newGateway(provider), "", nil)

	got := v.Verify(context.Background(), "who made excel", mocks.Section("doc-a", "Weather report.", 0.9))
	assert.Equal(t, types.VerdictNo, got)
}

// TestVerifyDefaultOnUnparsable verifies garbage output resolves to the
// configured default, for both defaults.
func TestVerifyDefaultOnUnparsable(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("this document discusses spreadsheets at length")

	v := NewVerifier(newGateway(provider), "", nil)
	assert.Equal(t, types.VerdictNo, v.Verify(context.Background(), "q", mocks.Section("doc-a", "x", 0)))

	v = NewVerifier(newGateway(provider), types.VerdictYes, nil)
	assert.Equal(t, types.VerdictYes, v.Verify(context.Background(), "q", mocks.Section("doc-a", "x", 0)))
}

// TestVerifyDefaultOnCallFailure verifies provider failures resolve to the
// default rather than propagating.
func TestVerifyDefaultOnCallFailure(t *testing.T) {
	provider := mocks.NewErrorProvider(errors.New("model down"))
	v := NewVerifier(newGateway(provider), types.VerdictNo, nil)

	assert.Equal(t, types.VerdictNo, v.Verify(context.Background(), "q", mocks.Section("doc-a", "x", 0)))
}

// TestVerifyTruncatesLongDocuments verifies oversized documents are clipped
// before prompting.
func TestVerifyTruncatesLongDocuments(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("yes")
	v := NewVerifier(newGateway(provider), "", nil)

	long := strings.Repeat("x", 10000)
	v.Verify(context.Background(), "q", mocks.Section("doc-a", long, 0))

	call := provider.GetLastCall()
	require.NotNil(t, call)
	assert.Less(t, len(call.Prompt()), 6000)
}

// TestVerifyPrefersCombinedContent verifies combined content is what gets
// judged when present.
func TestVerifyPrefersCombinedContent(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("yes")
	v := NewVerifier(newGateway(provider), "", nil)

	s := mocks.Section("doc-a", "chunk only", 0)
	s.CombinedContent = "chunk plus neighborhood context"
	v.Verify(context.Background(), "q", s)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	assert.Contains(t, call.Prompt(), "chunk plus neighborhood context")
	assert.NotContains(t, call.Prompt(), "chunk only")
}
