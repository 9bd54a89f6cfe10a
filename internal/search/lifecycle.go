package search

// State is the coordinator's lifecycle state.
type State string

// Lifecycle states.
const (
	StateUninitialized  State = "uninitialized"
	StateLoadingInitial State = "loading_initial"
	StateReady          State = "ready"
	StateLoadingMore    State = "loading_more"
	StateLoadingSearch  State = "loading_search"
)

var transitions = map[State]map[State]struct{}{
	StateUninitialized: {
		StateLoadingInitial: {},
		StateLoadingSearch:  {},
	},
	StateLoadingInitial: {
		StateReady:         {},
		StateLoadingSearch: {},
		StateUninitialized: {},
	},
	StateReady: {
		StateLoadingMore:    {},
		StateLoadingSearch:  {},
		StateLoadingInitial: {},
		StateUninitialized:  {},
	},
	StateLoadingMore: {
		StateReady:          {},
		StateLoadingSearch:  {},
		StateLoadingInitial: {},
		StateUninitialized:  {},
	},
	StateLoadingSearch: {
		StateReady:          {},
		StateLoadingInitial: {},
		StateUninitialized:  {},
	},
}

// CanTransition reports whether the coordinator may move from one state to another.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Loading reports whether s has a fetch pending or in flight.
func (s State) Loading() bool {
	switch s {
	case StateLoadingInitial, StateLoadingMore, StateLoadingSearch:
		return true
	default:
		return false
	}
}
