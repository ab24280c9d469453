package search

import (
	"context"
	"time"

	"github.com/BaSui01/answerflow/types"
)

// Filters narrows a search to a subset of the index. The search collaborator
// applies access control on top of these; the pipeline passes them through
// unchanged.
type Filters struct {
	SourceTypes  []string          `json:"source_types,omitempty"`
	UpdatedAfter time.Time         `json:"updated_after,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Searcher is the retrieval leaf. Results arrive ranked, deduplicated and
// access-filtered by the collaborator. Errors are treated by callers as
// "zero documents retrieved" for the enclosing branch.
type Searcher interface {
	Search(ctx context.Context, query string, filters Filters) ([]types.RetrievedSection, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query string, filters Filters) ([]types.RetrievedSection, error)

func (f SearcherFunc) Search(ctx context.Context, query string, filters Filters) ([]types.RetrievedSection, error) {
	return f(ctx, query, filters)
}

// Reranker reorders (and optionally truncates) a section list by a relevance
// model distinct from the initial retrieval scorer.
type Reranker interface {
	Rerank(ctx context.Context, query string, sections []types.RetrievedSection) ([]types.RetrievedSection, error)
}

// RerankerFunc adapts a function to the Reranker interface.
type RerankerFunc func(ctx context.Context, query string, sections []types.RetrievedSection) ([]types.RetrievedSection, error)

func (f RerankerFunc) Rerank(ctx context.Context, query string, sections []types.RetrievedSection) ([]types.RetrievedSection, error) {
	return f(ctx, query, sections)
}
