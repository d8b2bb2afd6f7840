package engine

import (
	"slices"
	"time"
)

// dispatch pairs the head of the global queue with a free worker until the
// engine stops and the queue is empty. It is the only goroutine that decides
// which worker gets which action.
func (e *Engine) dispatch() {
	defer close(e.dispatcherDone)

	for e.awaitWork() {
		w := e.obtainWorker()
		a := e.dequeue()
		if a == nil {
			w.unallocate()
			e.workerFree.Set()
			continue
		}

		queueWait.Observe(a.queueWait().Seconds())
		e.transition(a, StateWaitingToThread, 0)
		w.assign(a)
		e.accepted.Set()
	}

	e.logger.Debug("dispatcher exited")
}

// awaitWork blocks until the global queue is non-empty. It returns false once
// the engine is stopped and nothing is left to dispatch.
func (e *Engine) awaitWork() bool {
	for {
		e.newWork.Reset()

		e.queueMu.Lock()
		n, stopped := len(e.queue), e.stopped
		e.queueMu.Unlock()

		if n > 0 {
			return true
		}
		if stopped {
			return false
		}
		e.newWork.Wait(e.cfg.PollInterval)
	}
}

// obtainWorker returns an allocated worker, waiting for one to free up when
// the pool is at capacity.
func (e *Engine) obtainWorker() *worker {
	for {
		e.workerFree.Reset()
		if w := e.allocateWorker(); w != nil {
			return w
		}
		e.workerFree.Wait(e.cfg.PollInterval)
	}
}

// allocateWorker reserves the longest idle Disponible worker, or grows the
// pool when every worker is busy and the bound allows it.
func (e *Engine) allocateWorker() *worker {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()

	for _, w := range e.idleLocked() {
		if w.allocate() {
			return w
		}
	}

	if len(e.workers) >= e.maxThreads {
		return nil
	}

	e.nextWorkerID++
	w := newWorker(e.nextWorkerID, e)
	w.allocate()
	e.workers = append(e.workers, w)

	e.workersWG.Add(1)
	go func() {
		defer e.workersWG.Done()
		w.loop()
	}()

	e.logger.Debug("worker started", "worker_id", w.id, "workers", len(e.workers))
	return w
}

// idleLocked returns the Disponible workers ordered by idle time, longest
// idle first. The caller holds poolMu.
func (e *Engine) idleLocked() []*worker {
	type candidate struct {
		w     *worker
		since time.Time
	}

	var idle []candidate
	for _, w := range e.workers {
		info := w.info()
		if info.State == WorkerDisponible {
			idle = append(idle, candidate{w: w, since: info.IdleSince})
		}
	}
	slices.SortStableFunc(idle, func(a, b candidate) int {
		return a.since.Compare(b.since)
	})

	out := make([]*worker, len(idle))
	for i, c := range idle {
		out[i] = c.w
	}
	return out
}

func (e *Engine) dequeue() *Action {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	if len(e.queue) == 0 {
		return nil
	}
	a := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	queueDepth.Set(float64(len(e.queue)))
	return a
}

// shrink retires the most idle Disponible workers while the pool exceeds its
// bound. Busy workers are never touched.
func (e *Engine) shrink() {
	e.poolMu.Lock()
	excess := len(e.workers) - e.maxThreads
	if excess <= 0 {
		e.poolMu.Unlock()
		return
	}

	var retired []*worker
	for _, w := range e.idleLocked() {
		if excess == 0 {
			break
		}
		if w.retire() {
			retired = append(retired, w)
			excess--
		}
	}
	e.workers = slices.DeleteFunc(e.workers, func(w *worker) bool {
		return slices.Contains(retired, w)
	})
	remaining := len(e.workers)
	e.poolMu.Unlock()

	for _, w := range retired {
		w.stop()
	}
	if len(retired) > 0 {
		e.logger.Debug("pool shrunk", "retired", len(retired), "workers", remaining)
	}
}
