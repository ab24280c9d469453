package search

import (
	"context"
	"sort"

	"github.com/BaSui01/answerflow/types"
)

// NoopReranker passes sections through unchanged.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, sections []types.RetrievedSection) ([]types.RetrievedSection, error) {
	return sections, nil
}

// ScoreReranker reorders sections by their retrieval score, descending.
// It is the default when no external reranking model is wired in.
type ScoreReranker struct {
	// TopK truncates the result (0 = keep all).
	TopK int
}

func (r ScoreReranker) Rerank(_ context.Context, _ string, sections []types.RetrievedSection) ([]types.RetrievedSection, error) {
	out := make([]types.RetrievedSection, len(sections))
	copy(out, sections)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if r.TopK > 0 && len(out) > r.TopK {
		out = out[:r.TopK]
	}
	return out, nil
}
