package graph

import (
	"fmt"
	"sync"
)

// Reducer defines how to merge an update into a channel's current value.
// Reducers used at fan-in points must be commutative with respect to branch
// completion order.
type Reducer[T any] func(current T, update T) T

// LastValueReducer keeps the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MergeReducer folds updates into an accumulator via a merge function, for
// channel types with their own union semantics (e.g. a section pool).
func MergeReducer[T any](merge func(current, update T) T) Reducer[T] {
	return merge
}

// channelState holds one named state channel with its reducer, erased to any
// so channels of different types can live in one State.
type channelState struct {
	value   any
	reduce  func(current, update any) any
	version uint64
}

// State is the working memory threaded through one graph run: a set of named,
// reducer-merged channels. It is created once at invocation and discarded
// when the run terminates.
//
// Reads are safe from any goroutine; writes happen only through the
// scheduler's Apply at join points.
type State struct {
	mu       sync.RWMutex
	channels map[string]*channelState
}

// NewState creates an empty state.
func NewState() *State {
	return &State{channels: make(map[string]*channelState)}
}

// Define registers a channel with an initial value and reducer. Redefining a
// channel replaces it; callers do this once during graph construction.
func Define[T any](st *State, name string, initial T, reduce Reducer[T]) {
	if reduce == nil {
		reduce = LastValueReducer[T]()
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.channels[name] = &channelState{
		value: initial,
		reduce: func(current, update any) any {
			return reduce(current.(T), update.(T))
		},
	}
}

// Get returns the current value of a typed channel. Unknown channels or type
// mismatches return the zero value; graph wiring bugs surface in tests, not
// as runtime panics mid-pipeline.
func Get[T any](st *State, name string) T {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var zero T
	ch, ok := st.channels[name]
	if !ok {
		return zero
	}
	v, ok := ch.value.(T)
	if !ok {
		return zero
	}
	return v
}

// Version returns a channel's update count, for tests and trace output.
func (st *State) Version(name string) uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if ch, ok := st.channels[name]; ok {
		return ch.version
	}
	return 0
}

// Update is a partial state update returned by a node: channel name to value,
// merged through each channel's reducer.
type Update map[string]any

// Apply merges an update into the state. Only the scheduler's merge loop
// calls this during a run; its single-threaded application is what makes
// lock-free node bodies sound.
func (st *State) Apply(update Update) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for name, value := range update {
		ch, ok := st.channels[name]
		if !ok {
			return fmt.Errorf("update targets unknown channel %q", name)
		}
		ch.value = ch.reduce(ch.value, value)
		ch.version++
	}
	return nil
}
