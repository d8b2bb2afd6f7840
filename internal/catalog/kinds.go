package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/anvil/internal/engine"
)

// Built-in kind names.
const (
	KindSleep = "sleep"
	KindFail  = "fail"
	KindPanic = "panic"
	KindChain = "chain"
)

const (
	maxSleep      = 10 * time.Minute
	maxChainCount = 1000
)

// Enqueuer chains follow-up actions from inside a running action.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, run, done engine.Func) (*engine.Action, error)
}

// Default returns a registry with the built-in kinds. Chained follow-ups of
// the chain kind are submitted through eq.
func Default(eq Enqueuer) *Registry {
	r := NewRegistry()
	r.Register(KindSleep, sleepKind{})
	r.Register(KindFail, failKind{})
	r.Register(KindPanic, panicKind{})
	r.Register(KindChain, chainKind{eq: eq})
	return r
}

type sleepParams struct {
	DurationMS int `json:"duration_ms"`
}

func (p sleepParams) duration() (time.Duration, error) {
	d := time.Duration(p.DurationMS) * time.Millisecond
	if d < 0 || d > maxSleep {
		return 0, fmt.Errorf("%w: duration_ms must be within [0, %d]", ErrInvalidParams, maxSleep.Milliseconds())
	}
	return d, nil
}

// sleep waits for the duration or until the engine cancels the context.
func sleep(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sleepKind struct{}

func (sleepKind) Description() string {
	return "sleeps for duration_ms milliseconds"
}

func (sleepKind) Build(params json.RawMessage) (engine.Func, error) {
	var p sleepParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	d, err := p.duration()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error { return sleep(ctx, d) }, nil
}

type messageParams struct {
	Message string `json:"message"`
}

type failKind struct{}

func (failKind) Description() string {
	return "returns an error carrying message"
}

func (failKind) Build(params json.RawMessage) (engine.Func, error) {
	p := messageParams{Message: "requested failure"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	err := errors.New(p.Message)
	return func(context.Context) error { return err }, nil
}

type panicKind struct{}

func (panicKind) Description() string {
	return "panics with message"
}

func (panicKind) Build(params json.RawMessage) (engine.Func, error) {
	p := messageParams{Message: "requested panic"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	msg := p.Message
	return func(context.Context) error { panic(msg) }, nil
}

type chainParams struct {
	Count      int `json:"count"`
	DurationMS int `json:"duration_ms"`
}

type chainKind struct {
	eq Enqueuer
}

func (chainKind) Description() string {
	return "sleeps duration_ms, then chains count sleep actions on the same worker"
}

func (k chainKind) Build(params json.RawMessage) (engine.Func, error) {
	p := chainParams{Count: 1}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Count < 0 || p.Count > maxChainCount {
		return nil, fmt.Errorf("%w: count must be within [0, %d]", ErrInvalidParams, maxChainCount)
	}
	d, err := sleepParams{DurationMS: p.DurationMS}.duration()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		if err := sleep(ctx, d); err != nil {
			return err
		}
		name := "chain"
		if a, ok := engine.ActionFromContext(ctx); ok {
			name = a.Name()
		}
		for i := range p.Count {
			link := fmt.Sprintf("%s/%d", name, i+1)
			if _, err := k.eq.Enqueue(ctx, link, func(ctx context.Context) error { return sleep(ctx, d) }, nil); err != nil {
				return fmt.Errorf("enqueue %s: %w", link, err)
			}
		}
		return nil
	}, nil
}
