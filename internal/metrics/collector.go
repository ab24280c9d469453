// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector 指标收集器：覆盖图节点、LLM 调用、检索与去重四类指标。
type Collector struct {
	// 图节点指标
	nodeCompletedTotal *prometheus.CounterVec
	nodeDuration       *prometheus.HistogramVec
	branchDegraded     *prometheus.CounterVec

	// LLM 指标
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec

	// 检索指标
	retrievalDocs     *prometheus.HistogramVec
	dedupDroppedTotal prometheus.Counter

	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定 registry（nil 时使用自建 registry，
// 便于测试隔离）。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.nodeCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_node_completed_total",
			Help:      "Completed graph nodes by node ID.",
		},
		[]string{"node"},
	)
	c.nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_node_duration_seconds",
			Help:      "Graph node execution duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"node"},
	)
	c.branchDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_branch_degraded_total",
			Help:      "Branches that failed and degraded to an empty result.",
		},
		[]string{"node"},
	)
	c.llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM calls by handle and outcome.",
		},
		[]string{"handle", "outcome"},
	)
	c.llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM call duration by handle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"handle"},
	)
	c.retrievalDocs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_documents",
			Help:      "Documents returned per retrieval branch.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
		[]string{"stage"},
	)
	c.dedupDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_dropped_total",
			Help:      "Sections dropped by document-level dedup.",
		},
	)
	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by outcome.",
		},
		[]string{"outcome"},
	)
	c.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	for _, col := range []prometheus.Collector{
		c.nodeCompletedTotal, c.nodeDuration, c.branchDegraded,
		c.llmCallsTotal, c.llmCallDuration,
		c.retrievalDocs, c.dedupDroppedTotal,
		c.runsTotal, c.runDuration,
	} {
		if err := reg.Register(col); err != nil {
			c.logger.Warn("metric registration failed", zap.Error(err))
		}
	}

	return c
}

// NodeCompleted 记录节点完成。
func (c *Collector) NodeCompleted(node string, elapsed time.Duration) {
	c.nodeCompletedTotal.WithLabelValues(node).Inc()
	c.nodeDuration.WithLabelValues(node).Observe(elapsed.Seconds())
}

// BranchDegraded 记录降级分支。
func (c *Collector) BranchDegraded(node string) {
	c.branchDegraded.WithLabelValues(node).Inc()
}

// LLMCall 记录一次 LLM 调用。
func (c *Collector) LLMCall(handle string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.llmCallsTotal.WithLabelValues(handle, outcome).Inc()
	c.llmCallDuration.WithLabelValues(handle).Observe(elapsed.Seconds())
}

// RetrievalCompleted 记录一次检索分支结果数。stage 为 "variant" 或 "initial"。
func (c *Collector) RetrievalCompleted(stage string, docs int) {
	c.retrievalDocs.WithLabelValues(stage).Observe(float64(docs))
}

// DedupDropped 记录被去重丢弃的 section 数。
func (c *Collector) DedupDropped(n int) {
	if n > 0 {
		c.dedupDroppedTotal.Add(float64(n))
	}
}

// RunCompleted 记录一次完整运行。
func (c *Collector) RunCompleted(elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(elapsed.Seconds())
}
