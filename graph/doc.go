// Package graph implements the task-graph runtime behind the deep-answer
// pipeline: an explicit directed acyclic graph of nodes, each a pure function
// over the shared State that returns a partial Update. Nodes with no data
// dependency run concurrently; fan-out nodes expand into one task per data
// element at dispatch time; all updates are applied to the State through
// per-channel reducers by the scheduler's single merge loop, so sibling
// branches never write shared state directly.
package graph
