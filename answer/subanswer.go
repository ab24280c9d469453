package answer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/retrieval"
	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// SubQuestionAnswerer runs one sub-question branch: expanded retrieval, a
// RAG generation over the top verified sections, and a quality grading of
// the generated answer. Any step failing degrades the branch to an empty
// "no" answer; it never fails the run.
type SubQuestionAnswerer struct {
	gateway     *llm.Gateway
	pipeline    *retrieval.Pipeline
	handle      llm.Handle
	maxSections int
	tokenBudget int
	logger      *zap.Logger
}

// NewSubQuestionAnswerer creates the answerer. handle selects the generation
// model (primary by default); maxSections caps the prompt context (10 by
// default).
func NewSubQuestionAnswerer(gateway *llm.Gateway, pipeline *retrieval.Pipeline, handle llm.Handle, maxSections, tokenBudget int, logger *zap.Logger) *SubQuestionAnswerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handle == "" {
		handle = llm.HandlePrimary
	}
	if maxSections <= 0 {
		maxSections = 10
	}
	return &SubQuestionAnswerer{
		gateway:     gateway,
		pipeline:    pipeline,
		handle:      handle,
		maxSections: maxSections,
		tokenBudget: tokenBudget,
		logger:      logger.With(zap.String("component", "sub_answerer")),
	}
}

// Answer runs the branch for one sub-question.
func (a *SubQuestionAnswerer) Answer(ctx context.Context, sq types.SubQuestion, filters search.Filters) types.SubQuestionAnswer {
	query := sq.SearchQuery
	if query == "" {
		query = sq.Text
	}
	expanded := a.pipeline.Expand(ctx, query, filters)

	result := types.SubQuestionAnswer{
		Question: sq,
		Verdict:  types.VerdictNo,
		Sections: expanded.Sections,
		Trace:    expanded.Traces,
	}

	// No context, no generation: an empty answer beats a hallucinated one.
	if len(expanded.Sections) == 0 {
		a.logger.Debug("sub-question short-circuited on empty retrieval",
			zap.String("sub_question", sq.Text))
		return result
	}

	docBlock := formatSections(expanded.Sections, a.maxSections, a.tokenBudget)
	text, err := a.gateway.Invoke(ctx, a.handle, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(subAnswerPrompt, docBlock, sq.Text)},
	})
	if err != nil {
		a.logger.Warn("sub-answer generation degraded to empty",
			zap.String("sub_question", sq.Text), zap.Error(err))
		return result
	}
	result.Answer = text

	if isDontKnow(text) || text == "" {
		return result
	}
	result.Verdict = a.grade(ctx, sq.Text, text)
	return result
}

// grade judges answer adequacy with the fast model. Failures and unparsable
// outputs grade "no": a sub-answer we cannot vouch for stays out of the
// final prompt while its documents still reach the pool.
func (a *SubQuestionAnswerer) grade(ctx context.Context, question, answer string) types.Verdict {
	text, err := a.gateway.Invoke(ctx, llm.HandleFast, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(gradePrompt, question, answer)},
	})
	if err != nil {
		a.logger.Debug("grading call failed, marking inadequate", zap.Error(err))
		return types.VerdictNo
	}
	verdict, err := llm.ParseVerdict(text)
	if err != nil {
		return types.VerdictNo
	}
	return verdict
}
