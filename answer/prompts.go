package answer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/answerflow/types"
)

const decomposePrompt = `Decompose the question below into at most %d narrower sub-questions that can be answered independently.
For each sub-question also provide a short search query optimized for retrieval.
Respond with a JSON array of objects with fields "question" and "search_query".

Question: %s

JSON:`

const deepDecomposePrompt = `A first answering pass over the question below did not produce a satisfying answer.
%s
Decompose the question into at most %d new sub-questions that attack the gaps, avoiding sub-questions already answered well.
Respond with a JSON array of objects with fields "question" and "search_query".

Question: %s

JSON:`

const subAnswerPrompt = `Answer the question using only the documents below. Quote facts from the documents; do not add outside knowledge.
If the documents do not contain the answer, reply exactly: I don't know.

Documents:
%s

Question: %s

Answer:`

const gradePrompt = `Judge whether the answer below adequately addresses the question. Reply with exactly "yes" or "no".

Question: %s

Answer: %s

Adequate:`

const finalPrompt = `Write a complete answer to the question using the documents and the sub-answers below.
Ground every claim in the documents. If the context is insufficient, say what is missing instead of inventing facts.

Documents:
%s
%s
Question: %s

Answer:`

const extractionPrompt = `List the key entities and relationships mentioned in the question, one per line in the form "entity" or "entity -> relation -> entity".

Question: %s

Entities and relationships:`

// dontKnowSentinels are answers treated as empty during aggregation.
var dontKnowSentinels = []string{
	"i don't know",
	"i do not know",
	"no relevant information",
}

func isDontKnow(answer string) bool {
	norm := strings.ToLower(strings.TrimSpace(answer))
	norm = strings.Trim(norm, `."'!`)
	for _, s := range dontKnowSentinels {
		if norm == s || strings.HasPrefix(norm, s) {
			return true
		}
	}
	return false
}

// tokenCounter counts prompt tokens with tiktoken, falling back to a rough
// bytes/4 estimate when the encoding is unavailable (offline environments).
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var sharedCounter tokenCounter

func (tc *tokenCounter) count(text string) int {
	tc.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tc.enc = enc
		}
	})
	if tc.enc != nil {
		return len(tc.enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// countTokens reports the token count of text for context packing.
func countTokens(text string) int {
	return sharedCounter.count(text)
}

// formatSections renders sections as a numbered document block, packing at
// most maxSections sections into the token budget (0 = no budget).
func formatSections(sections []types.RetrievedSection, maxSections, tokenBudget int) string {
	if maxSections > 0 && len(sections) > maxSections {
		sections = sections[:maxSections]
	}

	var b strings.Builder
	used := 0
	for i, s := range sections {
		entry := fmt.Sprintf("[%d] %s\n%s\n\n", i+1, s.Title, s.Text())
		if tokenBudget > 0 {
			cost := countTokens(entry)
			if used+cost > tokenBudget && b.Len() > 0 {
				break
			}
			used += cost
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatSubAnswers renders the accepted sub-question/sub-answer block for the
// final prompt. Empty input yields an empty string so the final prompt stays
// valid without it.
func formatSubAnswers(subAnswers []types.SubQuestionAnswer) string {
	if len(subAnswers) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sub-questions already answered:\n")
	for _, sa := range subAnswers {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", sa.Question.Text, sa.Answer)
	}
	return b.String()
}
