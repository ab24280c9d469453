// Package answerflow provides a top-level convenience entry point for building
// a deep-answer runner with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/answerflow"
//
//	runner := answerflow.New(provider, searcher)
//	result, err := runner.RunToCompletion(ctx, "who made Excel?", search.Filters{})
//
// This is a thin wrapper around [answer.NewRunner] with default configuration;
// use the answer package directly when the pipeline needs tuning.
package answerflow

import (
	"github.com/BaSui01/answerflow/answer"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/search"
)

// New creates an [answer.Runner] with default configuration over the given
// provider and search collaborator. The provider serves both the primary and
// fast model tiers; use [NewWithGateway] to split them.
func New(provider llm.Provider, searcher search.Searcher, opts ...answer.RunnerOption) *answer.Runner {
	gateway := llm.NewGateway(provider, provider, llm.DefaultGatewayConfig(), nil)
	return answer.NewRunner(answer.DefaultConfig(), gateway, searcher, opts...)
}

// NewWithGateway creates an [answer.Runner] with default configuration over a
// pre-built gateway, for callers that tune models or rate limits.
func NewWithGateway(gateway *llm.Gateway, searcher search.Searcher, opts ...answer.RunnerOption) *answer.Runner {
	return answer.NewRunner(answer.DefaultConfig(), gateway, searcher, opts...)
}
