// Package retrieval implements the expanded retrieval sub-pipeline: rewrite
// a query into several variants, retrieve each variant in parallel through
// the search leaf, verify every candidate document against the original
// query with the fast model, then merge with document-level dedup and
// optional reranking.
//
// Every step degrades instead of failing: rewrite parse failures fall back
// to the original query, search errors become empty branches, verification
// failures drop the candidate.
package retrieval
