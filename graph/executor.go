package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/answerflow/internal/metrics"
	"github.com/BaSui01/answerflow/types"
)

const defaultMaxConcurrency = 16

// Executor schedules a Graph: independent nodes run concurrently, fan-out
// nodes expand into bounded parallel task batches, and every partial update
// is merged into the State by the single scheduler goroutine.
type Executor struct {
	logger         *zap.Logger
	metrics        *metrics.Collector
	tracer         trace.Tracer
	maxConcurrency int64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = c }
}

// WithTracer sets the tracer used for per-node spans.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// WithMaxConcurrency bounds the number of fan-out tasks in flight at once
// across the whole run.
func WithMaxConcurrency(n int64) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:         zap.NewNop(),
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("answerflow/graph")
	}
	e.logger = e.logger.With(zap.String("component", "graph_executor"))
	return e
}

// completion is what a finished node hands back to the merge loop.
type completion struct {
	node    string
	updates []Update
	// degraded counts fan-out tasks that failed and contributed an empty
	// update instead of aborting the batch.
	degraded int
	elapsed  time.Duration
	err      error // non-nil only for unrecoverable failures (panics)
}

// Execute runs the graph to completion. Branch failures degrade; the only
// error returned is an unrecoverable scheduler failure (node panic, wiring
// bug), which the caller surfaces as a single terminal error event.
func (e *Executor) Execute(ctx context.Context, g *Graph, st *State, emit EmitFunc) error {
	if err := g.Validate(); err != nil {
		return types.NewError(types.ErrScheduler, "invalid graph").WithCause(err)
	}

	ctx, span := e.tracer.Start(ctx, "graph.execute",
		trace.WithAttributes(attribute.Int("graph.nodes", g.Len())))
	defer span.End()

	// Cancelling on return releases any still-running branches blocked on
	// sending their completion after an early failure.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(e.maxConcurrency)

	indegree := make(map[string]int, g.Len())
	successors := make(map[string][]*Node, g.Len())
	for _, n := range g.nodes {
		indegree[n.ID] = len(n.Deps)
		for _, dep := range n.Deps {
			successors[dep] = append(successors[dep], n)
		}
	}

	done := make(chan completion)
	running := 0
	finished := 0

	dispatch := func(n *Node) {
		running++
		emit.Emit(Event{Kind: EventNodeStart, Node: n.ID})
		go e.runNode(ctx, n, st, sem, emit, done)
	}

	for _, n := range g.nodes {
		if indegree[n.ID] == 0 {
			dispatch(n)
		}
	}

	for running > 0 {
		select {
		case <-ctx.Done():
			return types.NewError(types.ErrRunTerminated, "run cancelled").WithCause(ctx.Err())
		case c := <-done:
			running--
			finished++

			if c.err != nil {
				e.logger.Error("node failed unrecoverably",
					zap.String("node", c.node), zap.Error(c.err))
				return c.err
			}

			// Join point: updates from this node's tasks are merged here,
			// in this goroutine, and nowhere else.
			for _, u := range c.updates {
				if err := st.Apply(u); err != nil {
					return types.NewError(types.ErrScheduler, "merge failed").
						WithCause(err).WithNode(c.node)
				}
			}

			if c.degraded > 0 {
				emit.Emit(Event{
					Kind:    EventNodeDegraded,
					Node:    c.node,
					Message: fmt.Sprintf("%d branch(es) degraded to empty result", c.degraded),
				})
			}
			emit.Emit(Event{Kind: EventNodeComplete, Node: c.node, Elapsed: c.elapsed})
			e.observeNode(c)

			for _, succ := range successors[c.node] {
				indegree[succ.ID]--
				if indegree[succ.ID] == 0 {
					dispatch(succ)
				}
			}
		}
	}

	if finished != g.Len() {
		return types.NewError(types.ErrScheduler,
			fmt.Sprintf("run finished %d of %d nodes", finished, g.Len()))
	}
	return nil
}

// runNode executes one node (plain or fan-out) off the merge loop and sends
// exactly one completion.
func (e *Executor) runNode(ctx context.Context, n *Node, st *State, sem *semaphore.Weighted, emit EmitFunc, done chan<- completion) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "graph.node",
		trace.WithAttributes(attribute.String("node.id", n.ID)))
	defer span.End()

	c := completion{node: n.ID}

	if n.Run != nil {
		update, degraded, err := e.runTask(ctx, n.ID, 0, st, n.Run)
		if err != nil {
			c.err = err
		} else if update != nil {
			c.updates = append(c.updates, update)
		}
		if degraded {
			c.degraded++
		}
		c.elapsed = time.Since(start)
		e.send(ctx, done, c)
		return
	}

	tasks := n.FanOut(st)
	span.SetAttributes(attribute.Int("node.fanout", len(tasks)))
	e.logger.Debug("fan-out dispatched",
		zap.String("node", n.ID), zap.Int("tasks", len(tasks)))

	updates := make([]Update, len(tasks))
	degraded := make([]bool, len(tasks))
	fatals := make([]error, len(tasks))

	// No cancel-on-first-error: one slow or failed branch must not abort its
	// siblings. Tasks degrade internally and the group always drains.
	var group errgroup.Group
	for i, task := range tasks {
		group.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				degraded[i] = true
				return nil
			}
			defer sem.Release(1)
			updates[i], degraded[i], fatals[i] = e.runTask(ctx, n.ID, i, st, task)
			return nil
		})
	}
	_ = group.Wait()

	for i := range tasks {
		if fatals[i] != nil {
			c.err = fatals[i] // panic in a task body: fatal
			break
		}
		if updates[i] != nil {
			c.updates = append(c.updates, updates[i])
		}
		if degraded[i] {
			c.degraded++
		}
	}
	c.elapsed = time.Since(start)
	e.send(ctx, done, c)
}

// runTask runs one node body with panic recovery. A returned error from the
// body itself is a degraded branch, not a failure: the task contributes an
// empty update and the run continues. Only a panic is escalated.
func (e *Executor) runTask(ctx context.Context, nodeID string, taskIdx int, st *State, fn NodeFunc) (update Update, degraded bool, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in node body",
				zap.String("node", nodeID),
				zap.Int("task", taskIdx),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			update = nil
			fatal = types.NewError(types.ErrNodePanic,
				fmt.Sprintf("panic in node %s: %v", nodeID, r)).WithNode(nodeID)
		}
	}()

	u, err := fn(ctx, st)
	if err != nil {
		e.logger.Warn("branch degraded",
			zap.String("node", nodeID),
			zap.Int("task", taskIdx),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.BranchDegraded(nodeID)
		}
		return nil, true, nil
	}
	return u, false, nil
}

func (e *Executor) observeNode(c completion) {
	if e.metrics == nil {
		return
	}
	e.metrics.NodeCompleted(c.node, c.elapsed)
}

// send delivers a completion unless the run was cancelled underneath us.
func (e *Executor) send(ctx context.Context, done chan<- completion, c completion) {
	select {
	case done <- c:
	case <-ctx.Done():
	}
}
