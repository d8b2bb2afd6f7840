package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/seantiz/anvil/internal/signal"
)

// Worker states.
const (
	WorkerDisponible = "disponible"
	WorkerAllocated  = "allocated"
	WorkerWaitToRun  = "wait_to_run"
	WorkerWorking    = "working"
	WorkerAbort      = "abort"
)

// Worker events.
const (
	eventAllocate = "allocate"
	eventHandOff  = "hand_off"
	eventBegin    = "begin"
	eventRelease  = "release"
	eventRetire   = "retire"
)

var workerTransitions = fsm.Events{
	{Name: eventAllocate, Src: []string{WorkerDisponible}, Dst: WorkerAllocated},
	{Name: eventHandOff, Src: []string{WorkerAllocated}, Dst: WorkerWaitToRun},
	{Name: eventBegin, Src: []string{WorkerWaitToRun}, Dst: WorkerWorking},
	{Name: eventRelease, Src: []string{WorkerWorking, WorkerAllocated}, Dst: WorkerDisponible},
	{Name: eventRetire, Src: []string{WorkerDisponible}, Dst: WorkerAbort},
}

// WorkerInfo is a point-in-time view of one worker.
type WorkerInfo struct {
	ID        int       `json:"id"`
	State     string    `json:"state"`
	IdleSince time.Time `json:"idle_since"`
	Executed  uint64    `json:"executed"`
	Chained   int       `json:"chained"`
}

// worker owns one goroutine and a local FIFO of chained actions. The mutex
// guards the state machine together with pending, current and local so that
// state and queue always change as one step.
type worker struct {
	id     int
	engine *Engine
	wake   signal.Signal

	mu        sync.Mutex
	machine   *fsm.FSM
	pending   *Action
	current   *Action
	local     []*Action
	idleSince time.Time
	executed  uint64

	stopping atomic.Bool
}

func newWorker(id int, e *Engine) *worker {
	w := &worker{
		id:        id,
		engine:    e,
		wake:      e.newSignal(),
		idleSince: time.Now(),
	}
	w.machine = fsm.NewFSM(
		WorkerDisponible,
		workerTransitions,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				workersByState.WithLabelValues(ev.Src).Dec()
				workersByState.WithLabelValues(ev.Dst).Inc()
			},
		},
	)
	workersByState.WithLabelValues(WorkerDisponible).Inc()
	return w
}

// fire runs a state machine event. The caller holds w.mu.
func (w *worker) fire(event string) bool {
	return w.machine.Event(context.Background(), event) == nil
}

// allocate reserves an idle worker for the dispatcher. It fails unless the
// worker is Disponible.
func (w *worker) allocate() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fire(eventAllocate)
}

// unallocate returns an allocated worker that received no action.
func (w *worker) unallocate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fire(eventRelease) {
		w.idleSince = time.Now()
	}
}

// assign hands an action to a worker the dispatcher allocated and wakes it.
// Only the dispatcher moves a worker out of Allocated, so hand-off cannot
// fail here.
func (w *worker) assign(a *Action) {
	w.mu.Lock()
	w.fire(eventHandOff)
	w.pending = a
	w.mu.Unlock()

	w.wake.Set()
}

// retire moves a Disponible worker to Abort. The caller must stop it.
func (w *worker) retire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fire(eventRetire)
}

func (w *worker) stop() {
	w.stopping.Store(true)
	w.wake.Set()
}

func (w *worker) state() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.Current()
}

func (w *worker) info() WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerInfo{
		ID:        w.id,
		State:     w.machine.Current(),
		IdleSince: w.idleSince,
		Executed:  w.executed,
		Chained:   len(w.local),
	}
}

// running reports whether a is the action currently executing on w.
func (w *worker) running(a *Action) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current == a && w.machine.Is(WorkerWorking)
}

// chain appends a to the local queue if caller is still executing on w.
func (w *worker) chain(caller, a *Action) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != caller || !w.machine.Is(WorkerWorking) {
		return false
	}
	w.local = append(w.local, a)
	return true
}

// begin takes the handed-over action and switches to Working.
func (w *worker) begin() *Action {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil || !w.fire(eventBegin) {
		return nil
	}
	a := w.pending
	w.pending = nil
	w.current = a
	return a
}

// next pops the next chained action. With an empty local queue the worker
// goes back to Disponible and next returns nil.
func (w *worker) next() *Action {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.executed++
	if len(w.local) > 0 {
		a := w.local[0]
		w.local[0] = nil
		w.local = w.local[1:]
		w.current = a
		return a
	}

	w.current = nil
	w.local = nil
	w.fire(eventRelease)
	w.idleSince = time.Now()
	return nil
}

func (w *worker) loop() {
	e := w.engine
	defer func() {
		workersByState.WithLabelValues(w.state()).Dec()
		e.logger.Debug("worker exited", "worker_id", w.id)
	}()

	for {
		w.wake.Reset()

		if a := w.begin(); a != nil {
			w.runChain(a)
			continue
		}

		if w.state() == WorkerAbort {
			return
		}
		if w.stopping.Load() && w.retire() {
			return
		}

		w.wake.Wait(e.cfg.PollInterval)
	}
}

// runChain executes a and then every action chained behind it without
// reporting Disponible in between.
func (w *worker) runChain(a *Action) {
	e := w.engine
	for a != nil {
		e.run(w, a)
		if a = w.next(); a != nil {
			e.transition(a, StateWaitingToThread, 0)
		}
	}
	e.workerFreed()
}
