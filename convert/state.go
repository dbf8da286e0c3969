package convert

import (
	"fmt"
	"slices"
	"strings"
)

// State is the lifecycle of a remote conversion job.
type State string

const (
	StateUploaded   State = "uploaded"
	StateConverting State = "converting"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

var transitions = map[State][]State{
	StateUploaded:   {StateConverting, StateFailed},
	StateConverting: {StateConverting, StateDone, StateFailed, StateTimedOut},
}

// Transition reports whether a job may move from one state to another.
func Transition(from, to State) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return fmt.Errorf("illegal conversion state change %s -> %s", from, to)
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateTimedOut
}

// remoteState maps a status string reported by the conversion service.
// Anything unrecognised is treated as a failure.
func remoteState(status string) State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "uploaded", "waiting", "queued", "converting", "processing":
		return StateConverting
	case "done", "finished", "completed":
		return StateDone
	default:
		return StateFailed
	}
}
