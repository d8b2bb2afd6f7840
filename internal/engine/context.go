package engine

import "context"

type runningKey struct{}

// running identifies the worker and action behind a callback context.
type running struct {
	worker *worker
	action *Action
}

func withRunning(ctx context.Context, w *worker, a *Action) context.Context {
	return context.WithValue(ctx, runningKey{}, &running{worker: w, action: a})
}

// caller returns the running action ctx belongs to, or nil if ctx was not
// handed out by this engine or its action is no longer executing.
func (e *Engine) caller(ctx context.Context) *running {
	if ctx == nil {
		return nil
	}
	r, ok := ctx.Value(runningKey{}).(*running)
	if !ok || r.worker.engine != e || !r.worker.running(r.action) {
		return nil
	}
	return r
}

// ActionFromContext returns the action whose callback received ctx.
func ActionFromContext(ctx context.Context) (*Action, bool) {
	r, ok := ctx.Value(runningKey{}).(*running)
	if !ok {
		return nil, false
	}
	return r.action, true
}
