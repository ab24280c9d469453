package types

import "time"

// RetrievedSection is one chunk of a source document plus its surrounding
// context, as returned by the search collaborator. Sections are immutable once
// produced; dedup across the pipeline happens at document granularity, so
// DocumentID alone is the uniqueness key.
type RetrievedSection struct {
	DocumentID      string            `json:"document_id"`
	Chunk           int               `json:"chunk"`
	Content         string            `json:"content"`
	CombinedContent string            `json:"combined_content,omitempty"`
	Score           float64           `json:"score"`
	Title           string            `json:"title,omitempty"`
	Link            string            `json:"link,omitempty"`
	SourceType      string            `json:"source_type,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Text returns the content to feed into a prompt, preferring the combined
// (context-expanded) form when the search leaf provided one.
func (s RetrievedSection) Text() string {
	if s.CombinedContent != "" {
		return s.CombinedContent
	}
	return s.Content
}

// SubQuestion is one decomposition of the user's original question. Created
// once by the decomposer, never mutated.
type SubQuestion struct {
	// Index is the position in the decomposition, starting at 0.
	Index int `json:"index"`
	// Text is the sub-question itself.
	Text string `json:"text"`
	// SearchQuery is the first-pass retrieval query attached by the decomposer.
	SearchQuery string `json:"search_query"`
}

// Verdict is a binary LLM judgement ("yes" / "no").
type Verdict string

const (
	VerdictYes Verdict = "yes"
	VerdictNo  Verdict = "no"
)

// Accepted reports whether the verdict is affirmative.
func (v Verdict) Accepted() bool { return v == VerdictYes }

// VariantTrace records one rewrite-variant retrieval branch for observability.
type VariantTrace struct {
	Query     string        `json:"query"`
	Retrieved int           `json:"retrieved"`
	Verified  int           `json:"verified"`
	Duration  time.Duration `json:"duration"`
}

// SubQuestionAnswer is the immutable result of one sub-question branch.
// Answers graded VerdictNo are excluded from the final prompt context but
// their Sections still join the document pool (recall over precision).
type SubQuestionAnswer struct {
	Question SubQuestion        `json:"question"`
	Answer   string             `json:"answer"`
	Verdict  Verdict            `json:"verdict"`
	Sections []RetrievedSection `json:"sections,omitempty"`
	Trace    []VariantTrace     `json:"trace,omitempty"`
}

// Citation points at one document backing the final answer.
type Citation struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Link       string `json:"link,omitempty"`
}

// TieBreak selects which section is retained when two sections share a
// document ID. The upstream pipeline never documented a precedence rule, so
// the choice stays explicit and configurable.
type TieBreak string

const (
	// TieBreakKeepFirst keeps the first section encountered (default).
	TieBreakKeepFirst TieBreak = "keep_first"
	// TieBreakKeepHighestScore keeps the higher-scored section.
	TieBreakKeepHighestScore TieBreak = "keep_highest_score"
)
