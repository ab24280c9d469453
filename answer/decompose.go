package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/types"
)

// Decomposer turns the original question into a bounded list of
// sub-questions via a single structured-output call. Parse failures degrade
// to a decomposition of degree 1: the original question itself.
type Decomposer struct {
	gateway *llm.Gateway
	handle  llm.Handle
	max     int
	logger  *zap.Logger
}

// NewDecomposer creates a decomposer. max <= 0 defaults to 3.
func NewDecomposer(gateway *llm.Gateway, handle llm.Handle, max int, logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if max <= 0 {
		max = 3
	}
	if handle == "" {
		handle = llm.HandlePrimary
	}
	return &Decomposer{
		gateway: gateway,
		handle:  handle,
		max:     max,
		logger:  logger.With(zap.String("component", "decomposer")),
	}
}

// Decompose produces the first-pass sub-questions for a question. The result
// is never empty and never an error.
func (d *Decomposer) Decompose(ctx context.Context, question string) []types.SubQuestion {
	prompt := fmt.Sprintf(decomposePrompt, d.max, question)
	return d.decompose(ctx, question, prompt)
}

// DecomposeDeep produces the second-pass sub-questions, conditioned on which
// first-pass sub-questions already succeeded or failed.
func (d *Decomposer) DecomposeDeep(ctx context.Context, question string, previous []types.SubQuestionAnswer) []types.SubQuestion {
	var history strings.Builder
	for _, sa := range previous {
		state := "answered"
		if !sa.Verdict.Accepted() || sa.Answer == "" {
			state = "unanswered"
		}
		fmt.Fprintf(&history, "- [%s] %s\n", state, sa.Question.Text)
	}
	prompt := fmt.Sprintf(deepDecomposePrompt, history.String(), d.max, question)
	return d.decompose(ctx, question, prompt)
}

func (d *Decomposer) decompose(ctx context.Context, question, prompt string) []types.SubQuestion {
	fallback := []types.SubQuestion{{Index: 0, Text: question, SearchQuery: question}}

	text, err := d.gateway.Invoke(ctx, d.handle, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		d.logger.Warn("decomposition degraded to single sub-question", zap.Error(err))
		return fallback
	}

	parsed, err := llm.ParseSubQuestions(text, d.max)
	if err != nil {
		d.logger.Warn("decomposition output unparsable, using original question",
			zap.String("question", question))
		return fallback
	}

	out := make([]types.SubQuestion, 0, len(parsed))
	for i, p := range parsed {
		out = append(out, types.SubQuestion{
			Index:       i,
			Text:        p.Question,
			SearchQuery: p.SearchQuery,
		})
	}
	d.logger.Debug("question decomposed",
		zap.String("question", question),
		zap.Int("sub_questions", len(out)),
	)
	return out
}
