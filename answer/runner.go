package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/graph"
	"github.com/BaSui01/answerflow/internal/metrics"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/retrieval"
	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// Config tunes one Runner.
type Config struct {
	// MaxSubQuestions bounds the decomposition degree.
	MaxSubQuestions int
	// MaxSectionsPerPrompt caps the document block of any single prompt.
	MaxSectionsPerPrompt int
	// ContextTokenBudget bounds the document block in tokens (0 = off).
	ContextTokenBudget int
	// EnableDeepen turns on the quality-gated second decomposition pass.
	EnableDeepen bool
	// EnableExtraction runs the entity/relationship extraction branch.
	EnableExtraction bool
	// StreamFinal streams the final generation as delta events.
	StreamFinal bool
	// GenerateHandle selects the model for answer generation.
	GenerateHandle llm.Handle
	// MaxConcurrency bounds in-flight fan-out tasks per run.
	MaxConcurrency int64
	// Retrieval tunes the expanded retrieval sub-pipeline.
	Retrieval retrieval.Config
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{
		MaxSubQuestions:      3,
		MaxSectionsPerPrompt: 10,
		ContextTokenBudget:   6000,
		EnableDeepen:         false,
		EnableExtraction:     false,
		StreamFinal:          true,
		GenerateHandle:       llm.HandlePrimary,
		MaxConcurrency:       16,
		Retrieval:            retrieval.DefaultConfig(),
	}
}

// FinalAnswer is the terminal payload of a run. InitialAnswer is always
// present (possibly empty after total degradation); DeepAnswer supersedes it
// when the refinement pass ran and succeeded.
type FinalAnswer struct {
	RunID         string                    `json:"run_id"`
	Question      string                    `json:"question"`
	InitialAnswer string                    `json:"initial_answer"`
	DeepAnswer    string                    `json:"deep_answer,omitempty"`
	Verdict       types.Verdict             `json:"verdict,omitempty"`
	Citations     []types.Citation          `json:"citations"`
	SubAnswers    []types.SubQuestionAnswer `json:"sub_answers"`
	Elapsed       time.Duration             `json:"elapsed"`
}

// Answer returns the best answer available: the deep answer when present,
// otherwise the initial one.
func (f *FinalAnswer) Answer() string {
	if f.DeepAnswer != "" {
		return f.DeepAnswer
	}
	return f.InitialAnswer
}

// Runner owns the wiring of one deep-answer pipeline instance. It is safe
// for concurrent use; all per-run state lives in the graph State.
type Runner struct {
	cfg        Config
	gateway    *llm.Gateway
	searcher   search.Searcher
	reranker   search.Reranker
	cache      redis.UniversalClient
	pipeline   *retrieval.Pipeline
	decomposer *Decomposer
	answerer   *SubQuestionAnswerer
	executor   *graph.Executor
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerMetrics sets the metrics collector.
func WithRunnerMetrics(c *metrics.Collector) RunnerOption {
	return func(r *Runner) { r.metrics = c }
}

// WithReranker plugs in an external reranking model.
func WithReranker(rr search.Reranker) RunnerOption {
	return func(r *Runner) { r.reranker = rr }
}

// WithRewriteCache enables the Redis-backed query rewrite cache.
func WithRewriteCache(client redis.UniversalClient) RunnerOption {
	return func(r *Runner) { r.cache = client }
}

// NewRunner creates a Runner over the given gateway and search leaf.
func NewRunner(cfg Config, gateway *llm.Gateway, searcher search.Searcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:      cfg,
		gateway:  gateway,
		searcher: searcher,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "answer_runner"))

	rewriter := retrieval.NewRewriter(gateway, r.cache, cfg.Retrieval.RewriteCacheTTL, r.logger)
	r.pipeline = retrieval.NewPipeline(cfg.Retrieval, gateway, searcher, r.reranker, rewriter, r.metrics, r.logger)
	r.decomposer = NewDecomposer(gateway, llm.HandlePrimary, cfg.MaxSubQuestions, r.logger)
	r.answerer = NewSubQuestionAnswerer(gateway, r.pipeline, cfg.GenerateHandle,
		cfg.MaxSectionsPerPrompt, cfg.ContextTokenBudget, r.logger)
	r.executor = graph.NewExecutor(
		graph.WithLogger(r.logger),
		graph.WithMetrics(r.metrics),
		graph.WithMaxConcurrency(cfg.MaxConcurrency),
	)
	return r
}

// Run starts a run and returns its event stream. The stream always ends
// with exactly one EventFinal (carrying a *FinalAnswer payload) or one
// EventError (scheduler failure), then closes.
func (r *Runner) Run(ctx context.Context, question string, filters search.Filters) (<-chan graph.Event, error) {
	if question == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "question is empty")
	}

	events := make(chan graph.Event, 64)
	go func() {
		defer close(events)
		r.run(ctx, question, filters, events)
	}()
	return events, nil
}

// RunToCompletion runs and blocks until the terminal event, returning the
// final answer. Intermediate events are discarded.
func (r *Runner) RunToCompletion(ctx context.Context, question string, filters search.Filters) (*FinalAnswer, error) {
	events, err := r.Run(ctx, question, filters)
	if err != nil {
		return nil, err
	}
	var final *FinalAnswer
	for ev := range events {
		switch ev.Kind {
		case graph.EventFinal:
			if fa, ok := ev.Payload.(*FinalAnswer); ok {
				final = fa
			}
		case graph.EventError:
			return nil, ev.Err
		}
	}
	if final == nil {
		return nil, types.NewError(types.ErrRunTerminated, "run ended without a final answer")
	}
	return final, nil
}

func (r *Runner) run(ctx context.Context, question string, filters search.Filters, events chan<- graph.Event) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))

	emit := graph.EmitFunc(func(ev graph.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	st := newRunState(r.cfg.Retrieval.TieBreak)
	g := r.buildInitialGraph(question, filters, emit)

	logger.Info("run started", zap.String("question", question))
	if err := r.executor.Execute(ctx, g, st, emit); err != nil {
		logger.Error("run failed in scheduler", zap.Error(err))
		if r.metrics != nil {
			r.metrics.RunCompleted(time.Since(start), err)
		}
		emit.Emit(graph.Event{Kind: graph.EventError, Err: err})
		return
	}

	final := &FinalAnswer{
		RunID:         runID,
		Question:      question,
		InitialAnswer: graph.Get[string](st, chanAnswer),
		SubAnswers:    graph.Get[[]types.SubQuestionAnswer](st, chanSubAnswers),
	}

	// Optional refinement: grade the initial answer, and when it falls
	// short run a second decomposition pass over the same accumulated
	// state. Failures here never cost us the initial answer.
	if r.cfg.EnableDeepen {
		final.Verdict = r.gradeInitial(ctx, question, final.InitialAnswer)
		if !final.Verdict.Accepted() {
			deepGraph := r.buildDeepGraph(question, filters, emit)
			if err := r.executor.Execute(ctx, deepGraph, st, emit); err != nil {
				logger.Warn("deep pass failed, keeping initial answer", zap.Error(err))
			} else {
				final.DeepAnswer = graph.Get[string](st, chanDeepAnswer)
				final.SubAnswers = graph.Get[[]types.SubQuestionAnswer](st, chanSubAnswers)
			}
		}
	}

	pool := graph.Get[*search.SectionPool](st, chanPool)
	final.Citations = citations(pool, r.cfg.MaxSectionsPerPrompt)
	final.Elapsed = time.Since(start)

	logger.Info("run completed",
		zap.Int("sub_answers", len(final.SubAnswers)),
		zap.Int("documents", pool.Len()),
		zap.Bool("deepened", final.DeepAnswer != ""),
		zap.Duration("elapsed", final.Elapsed),
	)
	if r.metrics != nil {
		r.metrics.RunCompleted(final.Elapsed, nil)
	}
	emit.Emit(graph.Event{Kind: graph.EventFinal, Payload: final})
}

// gradeInitial is the deepen-gate quality check. Call failures accept the
// initial answer rather than triggering an expensive second pass blindly.
func (r *Runner) gradeInitial(ctx context.Context, question, answer string) types.Verdict {
	if answer == "" {
		return types.VerdictNo
	}
	text, err := r.gateway.Invoke(ctx, llm.HandleFast, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(gradePrompt, question, answer)},
	})
	if err != nil {
		return types.VerdictYes
	}
	verdict, err := llm.ParseVerdict(text)
	if err != nil {
		return types.VerdictYes
	}
	return verdict
}
