package graph

import "time"

// EventKind discriminates the events streamed to the caller during a run.
type EventKind string

const (
	// EventNodeStart marks a node (or fan-out task batch) being dispatched.
	EventNodeStart EventKind = "node_start"
	// EventNodeComplete marks a node's updates having been merged.
	EventNodeComplete EventKind = "node_complete"
	// EventNodeDegraded marks a branch that failed and fell back to an empty
	// partial update. The run continues.
	EventNodeDegraded EventKind = "node_degraded"
	// EventDelta carries a streamed fragment of generated answer text.
	EventDelta EventKind = "delta"
	// EventFinal carries the terminal payload. Exactly one per successful run.
	EventFinal EventKind = "final"
	// EventError carries an unrecoverable scheduler failure. Exactly one per
	// failed run, mutually exclusive with EventFinal.
	EventError EventKind = "error"
)

// Event is one entry in the run's observable stream.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Node      string        `json:"node,omitempty"`
	Message   string        `json:"message,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Payload   any           `json:"payload,omitempty"`
	Err       error         `json:"-"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EmitFunc receives events as the run progresses. A nil EmitFunc is valid and
// drops all events. Implementations must not block indefinitely; the
// scheduler calls them inline from its merge loop.
type EmitFunc func(Event)

// Emit stamps and delivers an event, tolerating a nil receiver.
func (f EmitFunc) Emit(ev Event) {
	if f == nil {
		return
	}
	ev.Timestamp = time.Now()
	f(ev)
}
