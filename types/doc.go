// Package types defines the shared domain types of the answerflow pipeline:
// retrieved sections, sub-questions, sub-answers, citations and the structured
// error type used across packages.
package types
