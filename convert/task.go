package convert

import (
	"context"
	"sync"
)

// Task is a handle on a running conversion job.
type Task struct {
	JobID string

	updates chan State
	done    chan struct{}
	once    sync.Once

	state State
	err   error
}

func newTask(jobID string, buffer int) *Task {
	return &Task{
		JobID:   jobID,
		updates: make(chan State, buffer),
		done:    make(chan struct{}),
	}
}

// Updates carries every state the job passes through. It is closed once the
// job reaches a terminal state.
func (t *Task) Updates() <-chan State {
	return t.updates
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the job finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (State, error) {
	select {
	case <-t.done:
		return t.state, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Task) emit(s State) {
	select {
	case t.updates <- s:
	default:
	}
}

func (t *Task) finish(s State, err error) {
	t.once.Do(func() {
		t.state = s
		t.err = err
		close(t.updates)
		close(t.done)
	})
}
