// Package answer implements the deep-answer orchestration on top of the
// graph runtime: question decomposition, parallel sub-question answering
// with expanded retrieval, aggregation across the deduplicated document
// pool, final synthesis, and the optional quality-gated refinement pass.
//
// The public surface is Runner: construct one with the LLM gateway and
// search leaf, then call Run for a streamed event channel or
// RunToCompletion for the final answer. A run always terminates with a
// FinalAnswer once started; every internal failure degrades rather than
// aborting the pipeline.
package answer
