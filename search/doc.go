// Package search defines the retrieval leaf consumed by the orchestration
// graph: the Searcher interface, the document-granular SectionPool used at
// every fan-in merge point, and the optional Reranker.
//
// The concrete retrieval/reranking engine (vector store, keyword index,
// access filtering) lives outside this module; the pipeline only depends on
// the interfaces here.
package search
