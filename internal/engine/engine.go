package engine

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/signal"
)

const (
	// DefaultPollInterval bounds every internal wait so that a missed wakeup
	// only costs latency.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultSubmitAckWait is how long Submit yields for the dispatcher.
	DefaultSubmitAckWait = 2 * time.Millisecond
)

// Config holds the tunables of an Engine.
type Config struct {
	// MaxThreads is the initial pool bound. Zero or less means the number of
	// logical cores.
	MaxThreads int

	// SubmitAckWait is the bounded wait Submit performs for the dispatcher to
	// pick up new work. Zero disables it.
	SubmitAckWait time.Duration

	// PollInterval bounds internal signal waits. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// LogActions emits a debug line for every action transition.
	LogActions bool
}

// DefaultConfig returns a Config sized to the host.
func DefaultConfig() Config {
	return Config{
		MaxThreads:    runtime.NumCPU(),
		SubmitAckWait: DefaultSubmitAckWait,
		PollInterval:  DefaultPollInterval,
	}
}

// Recorder receives the journal entry of every completed action.
type Recorder interface {
	RecordAction(ctx context.Context, rec *model.ActionRecord) error
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRecorder journals completed actions to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithSignalFactory selects the Signal implementation used internally and
// for transient waits.
func WithSignalFactory(f signal.Factory) Option {
	return func(e *Engine) { e.newSignal = f }
}

// Stats is a point-in-time snapshot of the engine.
type Stats struct {
	MaxThreads     int            `json:"max_threads"`
	Workers        int            `json:"workers"`
	WorkersByState map[string]int `json:"workers_by_state"`
	QueueDepth     int            `json:"queue_depth"`
	Submitted      uint64         `json:"submitted"`
	Completed      uint64         `json:"completed"`
	Failed         uint64         `json:"failed"`
	Stopped        bool           `json:"stopped"`
}

// Engine runs actions on a bounded, elastic pool of workers fed by a single
// dispatcher goroutine.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	recorder  Recorder
	newSignal signal.Factory
	broker    *EventBroker

	seq atomic.Int64

	queueMu sync.Mutex
	queue   []*Action
	stopped bool

	poolMu       sync.Mutex
	workers      []*worker
	maxThreads   int
	nextWorkerID int

	newWork    signal.Signal
	workerFree signal.Signal
	accepted   signal.Signal
	allDone    signal.Signal

	runCtx    context.Context
	cancelRun context.CancelFunc

	stopOnce       sync.Once
	dispatcherDone chan struct{}
	workersWG      sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates an engine and starts its dispatcher. Workers are spawned on
// demand. Call Shutdown to release it.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = runtime.NumCPU()
	}

	e := &Engine{
		cfg:            cfg,
		logger:         logger,
		newSignal:      signal.NewCond,
		broker:         NewEventBroker(),
		dispatcherDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.newWork = e.newSignal()
	e.workerFree = e.newSignal()
	e.accepted = e.newSignal()
	e.allDone = e.newSignal()
	e.runCtx, e.cancelRun = context.WithCancel(context.Background())
	e.maxThreads = clampThreads(cfg.MaxThreads)
	maxThreads.Set(float64(e.maxThreads))

	go e.dispatch()

	logger.Info("engine started", "max_threads", e.maxThreads)
	return e
}

// Broker returns the lifecycle event broker.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Submit queues an action on the global FIFO. The done callback is optional
// and runs after run, even when run failed.
func (e *Engine) Submit(name string, run, done Func) (*Action, error) {
	if run == nil {
		return nil, ErrInvalidAction
	}

	a := e.newAction(name, model.DisciplineGlobal, run, done)
	if e.cfg.SubmitAckWait > 0 {
		e.accepted.Reset()
	}
	if err := e.push(a); err != nil {
		return nil, err
	}
	if e.cfg.SubmitAckWait > 0 {
		e.accepted.Wait(e.cfg.SubmitAckWait)
	}
	return a, nil
}

// Enqueue chains an action behind the one currently running when ctx is the
// context handed to a running callback of this engine: the new action runs
// next on the same worker, before that worker takes any global work. With any
// other ctx Enqueue behaves like Submit.
func (e *Engine) Enqueue(ctx context.Context, name string, run, done Func) (*Action, error) {
	caller := e.caller(ctx)
	if caller == nil {
		return e.Submit(name, run, done)
	}
	if run == nil {
		return nil, ErrInvalidAction
	}
	if e.isStopped() {
		return nil, ErrEngineStopped
	}

	a := e.newAction(name, model.DisciplineChained, run, done)
	e.transition(a, StateWaitingInQueue, 0)

	if !caller.worker.chain(caller.action, a) {
		// The caller finished in the meantime; fall back to the global queue.
		a.setDiscipline(model.DisciplineGlobal)
		if err := e.push(a); err != nil {
			return nil, err
		}
		return a, nil
	}

	e.submitted.Add(1)
	actionsSubmitted.WithLabelValues(model.DisciplineChained).Inc()
	return a, nil
}

// WaitForAll blocks until the global queue is empty and no worker is busy,
// or until ctx is done. Calling it with the ctx of a running callback returns
// ErrSelfWaitDeadlock. A callback that passes a context of its own instead is
// not detected and waits until that context is done, so callbacks must hand
// their ctx along here as they do for Enqueue.
func (e *Engine) WaitForAll(ctx context.Context) error {
	if e.caller(ctx) != nil {
		return ErrSelfWaitDeadlock
	}

	for {
		e.allDone.Reset()
		if e.idle() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e.allDone.Wait(e.pollWait(ctx))
	}
}

// WaitForActions blocks until every given action completed or ctx is done.
// Nil handles are ignored.
func (e *Engine) WaitForActions(ctx context.Context, actions ...*Action) error {
	actions = slices.DeleteFunc(slices.Clone(actions), func(a *Action) bool { return a == nil })

	s := e.newSignal()
	for _, a := range actions {
		a.Notify(s)
	}
	defer func() {
		for _, a := range actions {
			a.StopNotify(s)
		}
	}()

	for {
		s.Reset()
		if allCompleted(actions) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Wait(e.pollWait(ctx))
	}
}

// SetMaxThreads changes the pool bound, clamped to [1, 2 x logical cores],
// and returns the applied value. Excess workers are retired as soon as they
// are idle.
func (e *Engine) SetMaxThreads(n int) int {
	n = clampThreads(n)

	e.poolMu.Lock()
	e.maxThreads = n
	e.poolMu.Unlock()
	maxThreads.Set(float64(n))

	e.shrink()
	e.workerFree.Set()
	return n
}

// MaxThreads returns the current pool bound.
func (e *Engine) MaxThreads() int {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	return e.maxThreads
}

// Shutdown stops accepting work, dispatches what is already queued and then
// stops every worker once its chained work is done. With abort set the context
// handed to callbacks is cancelled up front as a hint to finish early; no
// action is skipped and no callback is interrupted. Shutdown waits for all
// workers and must not be called from a running action.
func (e *Engine) Shutdown(abort bool) {
	e.stopOnce.Do(func() {
		e.queueMu.Lock()
		e.stopped = true
		pending := len(e.queue)
		e.queueMu.Unlock()

		if abort {
			e.cancelRun()
		}

		e.newWork.Set()
		e.workerFree.Set()
		<-e.dispatcherDone

		e.poolMu.Lock()
		workers := slices.Clone(e.workers)
		e.poolMu.Unlock()
		for _, w := range workers {
			w.stop()
		}
		e.workersWG.Wait()

		e.poolMu.Lock()
		e.workers = nil
		e.poolMu.Unlock()

		e.cancelRun()
		e.allDone.Set()
		e.logger.Info("engine stopped", "abort", abort, "drained", pending)
	})
}

// Stats returns a snapshot of the queue, the pool and the counters.
func (e *Engine) Stats() Stats {
	e.queueMu.Lock()
	depth, stopped := len(e.queue), e.stopped
	e.queueMu.Unlock()

	workers := e.Workers()
	byState := make(map[string]int)
	for _, w := range workers {
		byState[w.State]++
	}

	return Stats{
		MaxThreads:     e.MaxThreads(),
		Workers:        len(workers),
		WorkersByState: byState,
		QueueDepth:     depth,
		Submitted:      e.submitted.Load(),
		Completed:      e.completed.Load(),
		Failed:         e.failed.Load(),
		Stopped:        stopped,
	}
}

// Workers returns per-worker info ordered by worker id.
func (e *Engine) Workers() []WorkerInfo {
	e.poolMu.Lock()
	workers := slices.Clone(e.workers)
	e.poolMu.Unlock()

	infos := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, w.info())
	}
	slices.SortFunc(infos, func(a, b WorkerInfo) int { return a.ID - b.ID })
	return infos
}

func (e *Engine) newAction(name, discipline string, run, done Func) *Action {
	id := e.seq.Add(1) & math.MaxInt64
	return newAction(id, name, discipline, run, done)
}

// push appends a to the global queue and wakes the dispatcher. Only the
// append happens under queueMu; the transition is published afterwards.
func (e *Engine) push(a *Action) error {
	from, moved := a.transition(StateWaitingInQueue, 0)

	e.queueMu.Lock()
	if e.stopped {
		e.queueMu.Unlock()
		return ErrEngineStopped
	}
	e.queue = append(e.queue, a)
	queueDepth.Set(float64(len(e.queue)))
	e.queueMu.Unlock()

	if moved {
		e.publish(a, from, StateWaitingInQueue, 0)
	}
	e.submitted.Add(1)
	actionsSubmitted.WithLabelValues(a.Discipline()).Inc()

	e.newWork.Set()
	e.workerFree.Set()
	return nil
}

func (e *Engine) isStopped() bool {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return e.stopped
}

// transition moves a forward and publishes the change.
func (e *Engine) transition(a *Action, to State, workerID int) bool {
	from, ok := a.transition(to, workerID)
	if !ok {
		return false
	}
	e.publish(a, from, to, workerID)
	return true
}

// publish announces a transition that already happened on a.
func (e *Engine) publish(a *Action, from, to State, workerID int) {
	e.broker.Publish(Event{
		Ref:      a.Ref(),
		ActionID: a.ID(),
		Name:     a.Name(),
		From:     from.String(),
		To:       to.String(),
		WorkerID: workerID,
		At:       time.Now().UTC(),
	})
	if e.cfg.LogActions {
		e.logger.Debug("action transition",
			"action_id", a.ID(), "name", a.Name(), "from", from.String(), "to", to.String())
	}
}

// run executes a on w and completes it. Callback failures are logged and
// recorded on the action; they never reach the worker loop.
func (e *Engine) run(w *worker, a *Action) {
	e.transition(a, StateRunning, w.id)

	ctx := withRunning(e.runCtx, w, a)
	start := time.Now()
	err := a.execute(ctx)
	actionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		a.fail(err)
		e.logger.Error("action failed",
			"action_id", a.ID(), "name", a.Name(), "worker_id", w.id, "error", err)
	}
	e.complete(a)
}

// complete moves a to Completed exactly once and journals it.
func (e *Engine) complete(a *Action) {
	outcome := model.OutcomeSucceeded
	if a.Err() != nil {
		outcome = model.OutcomeFailed
	}

	if a.State() == StateCompleted {
		return
	}
	e.completed.Add(1)
	if outcome == model.OutcomeFailed {
		e.failed.Add(1)
	}
	actionsCompleted.WithLabelValues(outcome).Inc()

	if !e.transition(a, StateCompleted, 0) {
		return
	}
	e.broker.Close(a.Ref())

	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordAction(context.Background(), a.record(outcome)); err != nil {
		e.logger.Error("failed to record action", "action_id", a.ID(), "ref", a.Ref(), "error", err)
	}
}

// workerFreed is called by a worker after it returned to Disponible.
func (e *Engine) workerFreed() {
	e.workerFree.Set()
	e.shrink()
	e.allDone.Set()
}

// idle reports whether nothing is queued and no worker holds work.
func (e *Engine) idle() bool {
	e.queueMu.Lock()
	depth := len(e.queue)
	e.queueMu.Unlock()
	if depth > 0 {
		return false
	}

	e.poolMu.Lock()
	workers := slices.Clone(e.workers)
	e.poolMu.Unlock()

	for _, w := range workers {
		switch w.state() {
		case WorkerAllocated, WorkerWaitToRun, WorkerWorking:
			return false
		}
	}
	return true
}

// pollWait caps a signal wait at the poll interval and the ctx deadline.
func (e *Engine) pollWait(ctx context.Context) time.Duration {
	wait := e.cfg.PollInterval
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = max(until, 0)
		}
	}
	return wait
}

func allCompleted(actions []*Action) bool {
	for _, a := range actions {
		if !a.Done() {
			return false
		}
	}
	return true
}

func clampThreads(n int) int {
	return min(max(n, 1), 2*runtime.NumCPU())
}
