package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a state change the lifecycle does
// not allow.
var ErrInvalidTransition = errors.New("pipeline: invalid state transition")

// State is the lifecycle state of one stage instance.
type State int32

const (
	Ready State = iota
	Analyzing
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Analyzing:
		return "analyzing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CanTransition reports whether s may change to next. Instances move from
// Ready to Analyzing, alternate between Analyzing and Paused, and end in
// Finished from any state but Finished.
func (s State) CanTransition(next State) bool {
	switch s {
	case Ready:
		return next == Analyzing || next == Finished
	case Analyzing:
		return next == Paused || next == Finished
	case Paused:
		return next == Analyzing || next == Finished
	default:
		return false
	}
}
