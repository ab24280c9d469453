package answer

import (
	"fmt"

	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// acceptedSubAnswers filters sub-answers down to those worth quoting in the
// final prompt: graded adequate, non-empty, and not a "don't know" sentinel.
// Rejected sub-answers stay out of the prompt, but their documents have
// already joined the pool (recall over precision).
func acceptedSubAnswers(subAnswers []types.SubQuestionAnswer) []types.SubQuestionAnswer {
	out := make([]types.SubQuestionAnswer, 0, len(subAnswers))
	for _, sa := range subAnswers {
		if !sa.Verdict.Accepted() || sa.Answer == "" || isDontKnow(sa.Answer) {
			continue
		}
		out = append(out, sa)
	}
	return out
}

// buildFinalPrompt assembles the synthesis prompt from the deduplicated
// pool, the accepted sub-answer block, and optional extracted entities. An
// empty pool still yields a valid prompt; the model is instructed to state
// what is missing rather than fabricate.
func buildFinalPrompt(question string, pool *search.SectionPool, subAnswers []types.SubQuestionAnswer, entities string, maxSections, tokenBudget int) string {
	docBlock := formatSections(pool.Sections(), maxSections, tokenBudget)
	if docBlock == "" {
		docBlock = "(no documents retrieved)"
	}

	aux := formatSubAnswers(acceptedSubAnswers(subAnswers))
	if entities != "" {
		aux += fmt.Sprintf("Known entities and relationships:\n%s\n", entities)
	}

	return fmt.Sprintf(finalPrompt, docBlock, aux, question)
}

// citations derives the citation list from the pool, in pool order, capped
// to the sections that could have appeared in the final prompt.
func citations(pool *search.SectionPool, maxSections int) []types.Citation {
	sections := pool.Sections()
	if maxSections > 0 && len(sections) > maxSections {
		sections = sections[:maxSections]
	}
	out := make([]types.Citation, 0, len(sections))
	for _, s := range sections {
		out = append(out, types.Citation{
			DocumentID: s.DocumentID,
			Title:      s.Title,
			Link:       s.Link,
		})
	}
	return out
}
