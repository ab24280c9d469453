package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
)

const rewritePrompt = `Generate %d alternative search queries for the following question.
Each alternative should capture different aspects or phrasings of the same information need.
Return only the queries, one per line.

Question: %s

Alternative queries:`

// Rewriter produces query variants with the fast model, with an optional
// Redis-backed cache in front (rewrites are deterministic enough at
// temperature 0 that reuse across runs is safe).
type Rewriter struct {
	gateway  *llm.Gateway
	cache    redis.UniversalClient
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRewriter creates a rewriter. cache may be nil to disable caching.
func NewRewriter(gateway *llm.Gateway, cache redis.UniversalClient, cacheTTL time.Duration, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &Rewriter{
		gateway:  gateway,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With(zap.String("component", "query_rewriter")),
	}
}

// Rewrite returns up to count query variants. The original query leads the
// list when includeOriginal is set. Never returns an error: on any failure
// the original query alone comes back.
func (r *Rewriter) Rewrite(ctx context.Context, query string, count int, includeOriginal bool) []string {
	if count <= 0 {
		return []string{query}
	}

	if cached, ok := r.cacheGet(ctx, query, count, includeOriginal); ok {
		return cached
	}

	messages := []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(rewritePrompt, count, query)},
	}
	text, err := r.gateway.Invoke(ctx, llm.HandleFast, messages)
	if err != nil {
		r.logger.Warn("rewrite degraded to original query", zap.Error(err))
		return []string{query}
	}

	variants := llm.ParseLines(text, count)
	if len(variants) == 0 {
		r.logger.Warn("rewrite output unparsable, using original query",
			zap.String("query", query))
		return []string{query}
	}

	out := make([]string, 0, len(variants)+1)
	if includeOriginal {
		out = append(out, query)
	}
	for _, v := range variants {
		if v != query {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = []string{query}
	}

	r.cacheSet(ctx, query, count, includeOriginal, out)
	return out
}

func rewriteCacheKey(query string, count int, includeOriginal bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%t", query, count, includeOriginal)))
	return "answerflow:rewrite:" + hex.EncodeToString(sum[:16])
}

func (r *Rewriter) cacheGet(ctx context.Context, query string, count int, includeOriginal bool) ([]string, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, rewriteCacheKey(query, count, includeOriginal)).Result()
	if err != nil {
		return nil, false
	}
	var variants []string
	if err := json.Unmarshal([]byte(raw), &variants); err != nil || len(variants) == 0 {
		return nil, false
	}
	r.logger.Debug("rewrite cache hit", zap.String("query", query))
	return variants, true
}

func (r *Rewriter) cacheSet(ctx context.Context, query string, count int, includeOriginal bool, variants []string) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(variants)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, rewriteCacheKey(query, count, includeOriginal), raw, r.cacheTTL).Err(); err != nil {
		r.logger.Debug("rewrite cache write failed", zap.Error(err))
	}
}
