package graph

import (
	"context"
	"fmt"
)

// NodeFunc is a node body: a pure function over the current state returning
// a partial update. Node bodies must not mutate state directly.
type NodeFunc func(ctx context.Context, st *State) (Update, error)

// FanOutFunc expands a node into one task per data element at dispatch time,
// after all its dependencies have merged. The task count is data-dependent and
// unknown until then.
type FanOutFunc func(st *State) []NodeFunc

// Node is one vertex of the graph. Exactly one of Run or FanOut is set.
type Node struct {
	// ID is the unique node identifier.
	ID string
	// Deps lists node IDs that must complete before this node dispatches.
	Deps []string
	// Run is the node body for plain nodes.
	Run NodeFunc
	// FanOut expands the node into parallel tasks. All task updates merge
	// together when the last task finishes, making this node its own join
	// point.
	FanOut FanOutFunc
}

// Graph is an explicit DAG of nodes. Build one per run shape, validate it,
// then hand it to an Executor.
type Graph struct {
	nodes []*Node
	byID  map[string]*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byID: make(map[string]*Node)}
}

// AddNode appends a node. Returns an error on duplicate IDs so wiring
// mistakes fail at construction, not mid-run.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("node has empty ID")
	}
	if _, exists := g.byID[n.ID]; exists {
		return fmt.Errorf("duplicate node ID %q", n.ID)
	}
	if (n.Run == nil) == (n.FanOut == nil) {
		return fmt.Errorf("node %q must set exactly one of Run or FanOut", n.ID)
	}
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
	return nil
}

// MustAddNode is AddNode for static graph construction, where a wiring error
// is a programming bug.
func (g *Graph) MustAddNode(n *Node) {
	if err := g.AddNode(n); err != nil {
		panic(err)
	}
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Validate checks that every dependency exists and the graph is acyclic.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	for _, n := range g.nodes {
		for _, dep := range n.Deps {
			if _, ok := g.byID[dep]; !ok {
				return fmt.Errorf("node %q depends on unknown node %q", n.ID, dep)
			}
		}
	}
	if _, err := g.topoOrder(); err != nil {
		return err
	}
	return nil
}

// topoOrder returns nodes in a dependency-respecting order, or an error when
// the graph has a cycle.
func (g *Graph) topoOrder() ([]*Node, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n.ID] = len(n.Deps)
	}

	successors := make(map[string][]*Node, len(g.nodes))
	for _, n := range g.nodes {
		for _, dep := range n.Deps {
			successors[dep] = append(successors[dep], n)
		}
	}

	var ready []*Node
	for _, n := range g.nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, succ := range successors[n.ID] {
			indegree[succ.ID]--
			if indegree[succ.ID] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("graph contains a cycle")
	}
	return order, nil
}
