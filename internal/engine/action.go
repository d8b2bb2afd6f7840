package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/signal"
)

// Func is the callback shape for both the run and the done half of an
// action. Arguments are captured by the closure.
type Func func(ctx context.Context) error

// State is the lifecycle position of an action. States only move forward.
type State int32

const (
	StateInitialized State = iota
	StateWaitingInQueue
	StateWaitingToThread
	StateRunning
	StateCompleted
)

var stateNames = [...]string{
	StateInitialized:     "initialized",
	StateWaitingInQueue:  "waiting_in_queue",
	StateWaitingToThread: "waiting_to_thread",
	StateRunning:         "running",
	StateCompleted:       "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Action is a handle to one submitted unit of work. It is created by Submit
// or Enqueue and stays valid for inspection after completion.
type Action struct {
	id   int64
	ref  string
	name string

	mu         sync.Mutex
	discipline string
	state      State
	run        Func
	done       Func
	waiters    []signal.Signal
	err        error
	workerID   int
	queuedAt   time.Time
	startedAt  time.Time
	finishedAt time.Time
}

func newAction(id int64, name, discipline string, run, done Func) *Action {
	return &Action{
		id:         id,
		ref:        model.NewRef(),
		name:       name,
		discipline: discipline,
		state:      StateInitialized,
		run:        run,
		done:       done,
	}
}

// ID returns the numeric action id. Ids grow monotonically and wrap to zero
// after the positive int64 range is exhausted.
func (a *Action) ID() int64 { return a.id }

// Ref returns the action's ULID reference.
func (a *Action) Ref() string { return a.ref }

// Name returns the human-readable name given at submission.
func (a *Action) Name() string { return a.name }

// State returns the current lifecycle state.
func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done reports whether the action reached StateCompleted.
func (a *Action) Done() bool {
	return a.State() == StateCompleted
}

// Err returns the callback failure of a completed action, or nil.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Discipline returns model.DisciplineGlobal or model.DisciplineChained.
func (a *Action) Discipline() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discipline
}

// Notify registers s to be set on every state transition of the action. If
// the action has already completed, s is set immediately so a late
// registration never misses the final transition.
func (a *Action) Notify(s signal.Signal) {
	a.mu.Lock()
	a.waiters = append(a.waiters, s)
	completed := a.state == StateCompleted
	a.mu.Unlock()

	if completed {
		s.Set()
	}
}

// StopNotify removes every registration of s.
func (a *Action) StopNotify(s signal.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.waiters = slices.DeleteFunc(a.waiters, func(w signal.Signal) bool { return w == s })
}

// transition moves the action forward to the given state and sets every
// registered signal. It refuses to move backward or to repeat a state.
func (a *Action) transition(to State, workerID int) (State, bool) {
	a.mu.Lock()
	from := a.state
	if to <= from {
		a.mu.Unlock()
		return from, false
	}
	a.state = to

	now := time.Now()
	switch to {
	case StateWaitingInQueue:
		a.queuedAt = now
	case StateRunning:
		a.startedAt = now
		a.workerID = workerID
	case StateCompleted:
		a.finishedAt = now
		a.run, a.done = nil, nil
	}
	waiters := slices.Clone(a.waiters)
	a.mu.Unlock()

	for _, s := range waiters {
		s.Set()
	}
	return from, true
}

func (a *Action) setDiscipline(d string) {
	a.mu.Lock()
	a.discipline = d
	a.mu.Unlock()
}

func (a *Action) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *Action) queueWait() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queuedAt.IsZero() {
		return 0
	}
	return time.Since(a.queuedAt)
}

// execute invokes the run callback and then the done callback. The done
// callback runs even when run failed. Panics are recovered and reported as
// ErrCallbackFailure.
func (a *Action) execute(ctx context.Context) error {
	a.mu.Lock()
	run, done := a.run, a.done
	a.mu.Unlock()

	err := invoke(ctx, run)
	if done != nil {
		err = errors.Join(err, invoke(ctx, done))
	}
	return err
}

func invoke(ctx context.Context, fn Func) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrCallbackFailure, rec)
		}
	}()

	if e := fn(ctx); e != nil {
		return fmt.Errorf("%w: %w", ErrCallbackFailure, e)
	}
	return nil
}

// ActionInfo is a point-in-time view of an action.
type ActionInfo struct {
	ID         int64      `json:"id"`
	Ref        string     `json:"ref"`
	Name       string     `json:"name"`
	Discipline string     `json:"discipline"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	WorkerID   int        `json:"worker_id,omitempty"`
	QueuedAt   *time.Time `json:"queued_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Info returns a snapshot of the action.
func (a *Action) Info() ActionInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := ActionInfo{
		ID:         a.id,
		Ref:        a.ref,
		Name:       a.name,
		Discipline: a.discipline,
		State:      a.state.String(),
		WorkerID:   a.workerID,
		QueuedAt:   stamp(a.queuedAt),
		StartedAt:  stamp(a.startedAt),
		FinishedAt: stamp(a.finishedAt),
	}
	if a.err != nil {
		info.Error = a.err.Error()
	}
	return info
}

func stamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// record builds the journal entry of a completed action.
func (a *Action) record(outcome string) *model.ActionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := &model.ActionRecord{
		Ref:        a.ref,
		ActionID:   a.id,
		Name:       a.name,
		Discipline: a.discipline,
		Outcome:    outcome,
		WorkerID:   a.workerID,
		QueuedAt:   a.queuedAt.UTC(),
		FinishedAt: a.finishedAt.UTC(),
	}
	if a.err != nil {
		rec.Error = a.err.Error()
	}
	if !a.startedAt.IsZero() {
		started := a.startedAt.UTC()
		rec.StartedAt = &started
		rec.DurationMS = int(a.finishedAt.Sub(a.startedAt).Milliseconds())
	}
	return rec
}
