package tpool

import (
	"sync"

	"github.com/google/uuid"
)

// State is a task's position in its lifecycle.
type State int

const (
	// StateNew is a task that has been created but never pushed.
	StateNew State = iota
	// StateQueued is a task waiting in a pool's FIFO queue.
	StateQueued
	// StateRunning is a task currently executing on a worker.
	StateRunning
	// StateDone is a task whose function has returned.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Func is the work a Task executes.
type Func func(arg any) any

// Task is a unit of work submitted to a Pool. A Task may be pushed to at
// most one pool at a time; once Done it may be pushed again.
type Task struct {
	// ID uniquely identifies the task for logging and metrics
	// correlation.
	ID uuid.UUID

	fn     Func
	arg    any
	result any

	owner *Pool
	next  *Task

	mu    sync.Mutex
	cond  *sync.Cond
	state State
}

// NewTask creates a task that will invoke fn(arg) once pushed to a pool.
func NewTask(fn Func, arg any) (*Task, error) {
	if fn == nil {
		return nil, newError(ErrInvalidArgument, "function must not be nil")
	}

	t := &Task{
		ID:    uuid.New(),
		fn:    fn,
		arg:   arg,
		state: StateNew,
	}
	t.cond = sync.NewCond(&t.mu)
	return t, nil
}

// IsFinished reports whether the task has completed.
func (t *Task) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateDone
}

// IsRunning reports whether the task is currently executing.
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateRunning
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Join blocks until the task completes and returns its result.
func (t *Task) Join() (any, error) {
	t.mu.Lock()
	state := t.state
	owner := t.owner
	t.mu.Unlock()

	if state == StateNew || owner == nil {
		return nil, newError(ErrTaskNotPushed, "task was never pushed to a pool")
	}

	t.mu.Lock()
	for t.state != StateDone {
		t.cond.Wait()
	}
	result := t.result
	t.mu.Unlock()

	return result, nil
}

// TimedJoin is stubbed out behind a feature guard that was never
// enabled; it always reports ErrNotImplemented.
func (t *Task) TimedJoin(timeoutSeconds float64) (any, error) {
	return nil, newError(ErrNotImplemented, "timed join was never enabled")
}

// Delete releases a task's resources. It fails if the task is currently
// queued or running.
func (t *Task) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateQueued || t.state == StateRunning {
		return newError(ErrTaskInPool, "task is queued or running")
	}
	return nil
}

// Detach is stubbed out behind a feature guard that was never enabled;
// it always reports ErrNotImplemented.
func (t *Task) Detach() error {
	return newError(ErrNotImplemented, "detach was never enabled")
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) complete(result any) {
	t.mu.Lock()
	t.result = result
	t.state = StateDone
	t.cond.Signal()
	t.mu.Unlock()
}
