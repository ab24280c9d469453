package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/answerflow/graph"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// Node IDs of the initial pass. The graph is:
//
//	decompose ─────────────► answer_sub_questions ─┐
//	initial_retrieval ─────────────────────────────┼─► aggregate ► generate_answer
//	extract (optional) ────────────────────────────┘
//
// decompose, initial_retrieval and extract have no mutual dependencies and
// run in parallel; answer_sub_questions fans out one task per sub-question.
const (
	nodeDecompose        = "decompose"
	nodeInitialRetrieval = "initial_retrieval"
	nodeExtract          = "extract"
	nodeAnswerSubs       = "answer_sub_questions"
	nodeAggregate        = "aggregate"
	nodeGenerate         = "generate_answer"

	nodeDeepDecompose = "deep_decompose"
	nodeDeepAnswers   = "deep_answer_sub_questions"
	nodeDeepAggregate = "aggregate_deep"
	nodeDeepGenerate  = "generate_deep_answer"
)

func (r *Runner) buildInitialGraph(question string, filters search.Filters, emit graph.EmitFunc) *graph.Graph {
	g := graph.New()
	tieBreak := r.cfg.Retrieval.TieBreak

	g.MustAddNode(&graph.Node{
		ID: nodeDecompose,
		Run: func(ctx context.Context, _ *graph.State) (graph.Update, error) {
			subs := r.decomposer.Decompose(ctx, question)
			return graph.Update{
				chanSubQuestions: subs,
				chanLog:          []string{logLine("decomposed into", len(subs), "sub-questions")},
			}, nil
		},
	})

	g.MustAddNode(&graph.Node{
		ID: nodeInitialRetrieval,
		Run: func(ctx context.Context, _ *graph.State) (graph.Update, error) {
			res := r.pipeline.Expand(ctx, question, filters)
			if r.metrics != nil {
				r.metrics.RetrievalCompleted("initial", len(res.Sections))
			}
			return graph.Update{
				chanPool: poolOf(tieBreak, res.Sections),
				chanLog:  []string{logLine("initial retrieval kept", len(res.Sections), "documents")},
			}, nil
		},
	})

	aggregateDeps := []string{nodeAnswerSubs, nodeInitialRetrieval}
	if r.cfg.EnableExtraction {
		aggregateDeps = append(aggregateDeps, nodeExtract)
		g.MustAddNode(&graph.Node{
			ID:  nodeExtract,
			Run: r.extractNode(question),
		})
	}

	g.MustAddNode(&graph.Node{
		ID:     nodeAnswerSubs,
		Deps:   []string{nodeDecompose},
		FanOut: r.subQuestionFanOut(filters),
	})

	g.MustAddNode(&graph.Node{
		ID:   nodeAggregate,
		Deps: aggregateDeps,
		Run: func(_ context.Context, st *graph.State) (graph.Update, error) {
			prompt := buildFinalPrompt(
				question,
				graph.Get[*search.SectionPool](st, chanPool),
				graph.Get[[]types.SubQuestionAnswer](st, chanSubAnswers),
				graph.Get[string](st, chanEntities),
				r.cfg.MaxSectionsPerPrompt,
				r.cfg.ContextTokenBudget,
			)
			return graph.Update{chanFinalPrompt: prompt}, nil
		},
	})

	g.MustAddNode(&graph.Node{
		ID:   nodeGenerate,
		Deps: []string{nodeAggregate},
		Run:  r.generateNode(chanAnswer, emit),
	})

	return g
}

// buildDeepGraph is the refinement pass: a fresh decomposition conditioned
// on what the first pass answered, over the same accumulated state. It runs
// at most once per request.
func (r *Runner) buildDeepGraph(question string, filters search.Filters, emit graph.EmitFunc) *graph.Graph {
	g := graph.New()

	g.MustAddNode(&graph.Node{
		ID: nodeDeepDecompose,
		Run: func(ctx context.Context, st *graph.State) (graph.Update, error) {
			previous := graph.Get[[]types.SubQuestionAnswer](st, chanSubAnswers)
			subs := r.decomposer.DecomposeDeep(ctx, question, previous)
			return graph.Update{
				chanSubQuestions: subs,
				chanLog:          []string{logLine("deep pass decomposed into", len(subs), "sub-questions")},
			}, nil
		},
	})

	g.MustAddNode(&graph.Node{
		ID:     nodeDeepAnswers,
		Deps:   []string{nodeDeepDecompose},
		FanOut: r.subQuestionFanOut(filters),
	})

	g.MustAddNode(&graph.Node{
		ID:   nodeDeepAggregate,
		Deps: []string{nodeDeepAnswers},
		Run: func(_ context.Context, st *graph.State) (graph.Update, error) {
			prompt := buildFinalPrompt(
				question,
				graph.Get[*search.SectionPool](st, chanPool),
				graph.Get[[]types.SubQuestionAnswer](st, chanSubAnswers),
				graph.Get[string](st, chanEntities),
				r.cfg.MaxSectionsPerPrompt,
				r.cfg.ContextTokenBudget,
			)
			return graph.Update{chanFinalPrompt: prompt}, nil
		},
	})

	g.MustAddNode(&graph.Node{
		ID:   nodeDeepGenerate,
		Deps: []string{nodeDeepAggregate},
		Run:  r.generateNode(chanDeepAnswer, emit),
	})

	return g
}

// subQuestionFanOut expands into one task per sub-question in the state.
// Each task contributes its answer and a partial pool; both merge through
// commutative reducers at the node's join point.
func (r *Runner) subQuestionFanOut(filters search.Filters) graph.FanOutFunc {
	tieBreak := r.cfg.Retrieval.TieBreak
	return func(st *graph.State) []graph.NodeFunc {
		subs := graph.Get[[]types.SubQuestion](st, chanSubQuestions)
		tasks := make([]graph.NodeFunc, len(subs))
		for i, sq := range subs {
			tasks[i] = func(ctx context.Context, _ *graph.State) (graph.Update, error) {
				result := r.answerer.Answer(ctx, sq, filters)
				return graph.Update{
					chanSubAnswers: []types.SubQuestionAnswer{result},
					chanPool:       poolOf(tieBreak, result.Sections),
					chanLog:        []string{logLine("sub-question", sq.Index, "verdict "+string(result.Verdict))},
				}, nil
			}
		}
		return tasks
	}
}

// logLine formats a state-log trace entry.
func logLine(args ...any) string {
	return strings.TrimSpace(fmt.Sprintln(args...))
}

// extractNode runs the optional entity/relationship extraction. An error
// degrades the branch; the final prompt simply omits the entity block.
func (r *Runner) extractNode(question string) graph.NodeFunc {
	return func(ctx context.Context, _ *graph.State) (graph.Update, error) {
		text, err := r.gateway.Invoke(ctx, llm.HandleFast, []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(extractionPrompt, question)},
		})
		if err != nil {
			return nil, err
		}
		return graph.Update{chanEntities: strings.TrimSpace(text)}, nil
	}
}

// generateNode produces the synthesis over the aggregated prompt. When
// streaming is enabled, deltas go out as events while the full text
// accumulates into the target channel. A generation failure degrades the
// node: the channel keeps its zero value and the run still terminates with
// a FinalAnswer.
func (r *Runner) generateNode(targetChannel string, emit graph.EmitFunc) graph.NodeFunc {
	return func(ctx context.Context, st *graph.State) (graph.Update, error) {
		prompt := graph.Get[string](st, chanFinalPrompt)
		messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

		if !r.cfg.StreamFinal {
			text, err := r.gateway.Invoke(ctx, r.cfg.GenerateHandle, messages)
			if err != nil {
				return nil, err
			}
			return graph.Update{targetChannel: text}, nil
		}

		stream, err := r.gateway.Stream(ctx, r.cfg.GenerateHandle, messages)
		if err != nil {
			return nil, err
		}

		var b strings.Builder
		for chunk := range stream {
			if chunk.Err != nil {
				// Keep whatever arrived before the failure.
				if b.Len() == 0 {
					return nil, chunk.Err
				}
				break
			}
			if chunk.Delta.Content != "" {
				b.WriteString(chunk.Delta.Content)
				emit.Emit(graph.Event{Kind: graph.EventDelta, Node: targetChannel, Delta: chunk.Delta.Content})
			}
		}
		return graph.Update{targetChannel: b.String()}, nil
	}
}
