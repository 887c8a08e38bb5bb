package compress

import (
	"fmt"
)

// State is the phase of a compression session
type State int

const (
	StateIdle State = iota
	StateLoading
	StateAnalyzing
	StateProcessing
	StateDone
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAnalyzing:
		return "analyzing"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no work is in flight in this state
func (s State) Terminal() bool {
	return s == StateIdle || s == StateDone || s == StateFailed
}

// Event drives a state change
type Event int

const (
	EventLoad Event = iota
	EventLoaded
	EventAnalyzed
	EventSucceeded
	EventFailed
	EventRetry
	EventReset
)

// String returns the string representation of the event
func (e Event) String() string {
	switch e {
	case EventLoad:
		return "load"
	case EventLoaded:
		return "loaded"
	case EventAnalyzed:
		return "analyzed"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventRetry:
		return "retry"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Transition returns the state that follows from applying ev in from. It has
// no side effects; an event that is not allowed in from is an error.
//
//	Idle       --load-->      Loading
//	Loading    --loaded-->    Analyzing
//	Analyzing  --analyzed-->  Processing
//	Processing --succeeded--> Done
//	Loading, Analyzing, Processing --failed--> Failed
//	Done, Failed --retry--> Analyzing
//	Done, Failed --load-->  Loading
//	any --reset--> Idle
func Transition(from State, ev Event) (State, error) {
	if ev == EventReset {
		return StateIdle, nil
	}

	switch from {
	case StateIdle:
		if ev == EventLoad {
			return StateLoading, nil
		}
	case StateLoading:
		switch ev {
		case EventLoaded:
			return StateAnalyzing, nil
		case EventFailed:
			return StateFailed, nil
		}
	case StateAnalyzing:
		switch ev {
		case EventAnalyzed:
			return StateProcessing, nil
		case EventFailed:
			return StateFailed, nil
		}
	case StateProcessing:
		switch ev {
		case EventSucceeded:
			return StateDone, nil
		case EventFailed:
			return StateFailed, nil
		}
	case StateDone, StateFailed:
		switch ev {
		case EventRetry:
			return StateAnalyzing, nil
		case EventLoad:
			return StateLoading, nil
		}
	}

	return from, fmt.Errorf("event %s is not allowed in state %s", ev, from)
}
