package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/answerflow/internal/metrics"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// Config tunes the expanded retrieval sub-pipeline.
type Config struct {
	// RewriteCount is the number of query variants to generate.
	RewriteCount int
	// IncludeOriginal keeps the original query as the first variant.
	IncludeOriginal bool
	// DocsPerVariant caps sections kept from each variant branch.
	DocsPerVariant int
	// SearchTimeout bounds each search leaf call.
	SearchTimeout time.Duration
	// VerifyParseDefault is the verdict applied when verification output is
	// unparsable ("no" = exclude, the documented default).
	VerifyParseDefault types.Verdict
	// EnableRerank runs the reranker over the merged verified set.
	EnableRerank bool
	// TieBreak picks the retained section on document-ID collisions.
	TieBreak types.TieBreak
	// MaxConcurrency bounds parallel search and verification calls.
	MaxConcurrency int
	// RewriteCacheTTL controls the rewrite cache entry lifetime.
	RewriteCacheTTL time.Duration
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		RewriteCount:       3,
		IncludeOriginal:    true,
		DocsPerVariant:     4,
		SearchTimeout:      15 * time.Second,
		VerifyParseDefault: types.VerdictNo,
		EnableRerank:       false,
		TieBreak:           types.TieBreakKeepFirst,
		MaxConcurrency:     8,
		RewriteCacheTTL:    30 * time.Minute,
	}
}

// Result is the sub-pipeline output: deduplicated verified sections plus the
// per-variant trace for observability.
type Result struct {
	Sections []types.RetrievedSection
	Traces   []types.VariantTrace
}

// Pipeline wires rewriter, searcher, verifier and reranker into the expanded
// retrieval flow. One Pipeline is shared by all branches of a run; it holds
// no per-query state.
type Pipeline struct {
	cfg      Config
	rewriter *Rewriter
	verifier *Verifier
	searcher search.Searcher
	reranker search.Reranker
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewPipeline creates the sub-pipeline. reranker may be nil (score order is
// used when reranking is enabled without one); collector may be nil.
func NewPipeline(cfg Config, gateway *llm.Gateway, searcher search.Searcher, reranker search.Reranker, rewriter *Rewriter, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DocsPerVariant <= 0 {
		cfg.DocsPerVariant = 4
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if reranker == nil {
		reranker = search.ScoreReranker{}
	}
	if rewriter == nil {
		rewriter = NewRewriter(gateway, nil, cfg.RewriteCacheTTL, logger)
	}
	return &Pipeline{
		cfg:      cfg,
		rewriter: rewriter,
		verifier: NewVerifier(gateway, cfg.VerifyParseDefault, logger),
		searcher: searcher,
		reranker: reranker,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "expanded_retrieval")),
	}
}

// variantResult is one variant branch's retrieval outcome. Search failures
// arrive here as an empty section list, never as an error.
type variantResult struct {
	query    string
	sections []types.RetrievedSection
	elapsed  time.Duration
}

// Expand runs the full sub-pipeline for one query. It never returns an
// error: each internal step degrades independently and the worst case is an
// empty result.
func (p *Pipeline) Expand(ctx context.Context, query string, filters search.Filters) Result {
	variants := p.rewriter.Rewrite(ctx, query, p.cfg.RewriteCount, p.cfg.IncludeOriginal)

	// Parallel retrieval: one branch per variant.
	results := make([]variantResult, len(variants))
	var group errgroup.Group
	group.SetLimit(p.cfg.MaxConcurrency)
	for i, variant := range variants {
		group.Go(func() error {
			results[i] = p.retrieveVariant(ctx, variant, filters)
			return nil
		})
	}
	_ = group.Wait()

	// Verification fan-out: one task per candidate section across all
	// variants, judged against the original query.
	type candidate struct {
		variant int
		section types.RetrievedSection
	}
	var candidates []candidate
	for i, res := range results {
		for _, s := range res.sections {
			candidates = append(candidates, candidate{variant: i, section: s})
		}
	}

	verdicts := make([]types.Verdict, len(candidates))
	var vgroup errgroup.Group
	vgroup.SetLimit(p.cfg.MaxConcurrency)
	for i, cand := range candidates {
		vgroup.Go(func() error {
			verdicts[i] = p.verifier.Verify(ctx, query, cand.section)
			return nil
		})
	}
	_ = vgroup.Wait()

	// Merge with document-level dedup, in verification order.
	pool := search.NewSectionPool(p.cfg.TieBreak)
	verifiedPerVariant := make([]int, len(variants))
	for i, cand := range candidates {
		if verdicts[i].Accepted() {
			verifiedPerVariant[cand.variant]++
			pool.Add(cand.section)
		}
	}
	if p.metrics != nil {
		p.metrics.DedupDropped(len(candidates) - pool.Len())
	}

	sections := pool.Sections()
	if p.cfg.EnableRerank && len(sections) > 1 {
		reranked, err := p.reranker.Rerank(ctx, query, sections)
		if err != nil {
			p.logger.Warn("rerank failed, keeping verification order", zap.Error(err))
		} else {
			sections = reranked
		}
	}

	traces := make([]types.VariantTrace, len(variants))
	for i, res := range results {
		traces[i] = types.VariantTrace{
			Query:     res.query,
			Retrieved: len(res.sections),
			Verified:  verifiedPerVariant[i],
			Duration:  res.elapsed,
		}
	}

	p.logger.Debug("expanded retrieval completed",
		zap.String("query", query),
		zap.Int("variants", len(variants)),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(sections)),
	)

	return Result{Sections: sections, Traces: traces}
}

// retrieveVariant calls the search leaf for one variant. Errors and timeouts
// degrade to zero documents for the branch.
func (p *Pipeline) retrieveVariant(ctx context.Context, variant string, filters search.Filters) variantResult {
	start := time.Now()

	searchCtx := ctx
	if p.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, p.cfg.SearchTimeout)
		defer cancel()
	}

	sections, err := p.searcher.Search(searchCtx, variant, filters)
	if err != nil {
		p.logger.Warn("variant retrieval degraded to empty",
			zap.String("variant", variant), zap.Error(err))
		sections = nil
	}
	if len(sections) > p.cfg.DocsPerVariant {
		sections = sections[:p.cfg.DocsPerVariant]
	}
	if p.metrics != nil {
		p.metrics.RetrievalCompleted("variant", len(sections))
	}
	return variantResult{query: variant, sections: sections, elapsed: time.Since(start)}
}
