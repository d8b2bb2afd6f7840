package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/signal"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitialized, "initialized"},
		{StateWaitingInQueue, "waiting_in_queue"},
		{StateWaitingToThread, "waiting_to_thread"},
		{StateRunning, "running"},
		{StateCompleted, "completed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestTransitionIsMonotonic(t *testing.T) {
	a := newAction(1, "a", model.DisciplineGlobal, func(context.Context) error { return nil }, nil)

	if _, ok := a.transition(StateWaitingInQueue, 0); !ok {
		t.Fatal("initialized -> waiting_in_queue rejected")
	}
	if _, ok := a.transition(StateWaitingInQueue, 0); ok {
		t.Error("repeated state accepted")
	}
	if _, ok := a.transition(StateRunning, 3); !ok {
		t.Fatal("waiting_in_queue -> running rejected")
	}
	if from, ok := a.transition(StateWaitingToThread, 0); ok {
		t.Errorf("backward transition from %v accepted", from)
	}
	if _, ok := a.transition(StateCompleted, 0); !ok {
		t.Fatal("running -> completed rejected")
	}
	if a.State() != StateCompleted {
		t.Errorf("state = %v, want completed", a.State())
	}
}

func TestCompletionClearsCallbacks(t *testing.T) {
	a := newAction(1, "a", model.DisciplineGlobal,
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
	)
	a.transition(StateCompleted, 0)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run != nil || a.done != nil {
		t.Error("callbacks should be released at completion")
	}
}

func TestTransitionSetsRegisteredSignals(t *testing.T) {
	a := newAction(1, "a", model.DisciplineGlobal, func(context.Context) error { return nil }, nil)
	s1, s2 := signal.NewCond(), signal.NewChan()
	a.Notify(s1)
	a.Notify(s2)

	a.transition(StateWaitingInQueue, 0)
	if !s1.IsSet() || !s2.IsSet() {
		t.Fatal("registered signals not set on transition")
	}

	s1.Reset()
	a.StopNotify(s1)
	a.transition(StateRunning, 1)
	if s1.IsSet() {
		t.Error("signal set after StopNotify")
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	var doneRan bool
	a := newAction(1, "a", model.DisciplineGlobal,
		func(context.Context) error { panic("boom") },
		func(context.Context) error { doneRan = true; return nil },
	)

	err := a.execute(context.Background())
	if !errors.Is(err, ErrCallbackFailure) {
		t.Fatalf("execute err = %v, want ErrCallbackFailure", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q should mention the panic value", err)
	}
	if !doneRan {
		t.Error("done callback should run after a panicking run callback")
	}
}

func TestExecuteJoinsRunAndDoneErrors(t *testing.T) {
	runErr, doneErr := errors.New("run"), errors.New("done")
	a := newAction(1, "a", model.DisciplineGlobal,
		func(context.Context) error { return runErr },
		func(context.Context) error { return doneErr },
	)

	err := a.execute(context.Background())
	if !errors.Is(err, runErr) || !errors.Is(err, doneErr) {
		t.Errorf("execute err = %v, want both run and done errors", err)
	}
}

func TestRecordOfFailedAction(t *testing.T) {
	a := newAction(7, "failing", model.DisciplineGlobal, func(context.Context) error { return nil }, nil)
	a.transition(StateWaitingInQueue, 0)
	a.transition(StateWaitingToThread, 0)
	a.transition(StateRunning, 2)
	a.fail(ErrCallbackFailure)
	a.transition(StateCompleted, 0)

	rec := a.record(model.OutcomeFailed)
	if rec.StartedAt == nil {
		t.Fatalf("record of a run action should carry its start: %+v", rec)
	}
	if rec.ActionID != 7 || rec.WorkerID != 2 || rec.Error != ErrCallbackFailure.Error() {
		t.Errorf("record = %+v", rec)
	}
}

func TestActionIDWrapsToZero(t *testing.T) {
	e := &Engine{}
	e.seq.Store(math.MaxInt64)

	a := e.newAction("wrap", model.DisciplineGlobal, func(context.Context) error { return nil }, nil)
	if a.ID() != 0 {
		t.Errorf("id after MaxInt64 = %d, want 0", a.ID())
	}
	b := e.newAction("next", model.DisciplineGlobal, func(context.Context) error { return nil }, nil)
	if b.ID() != 1 {
		t.Errorf("id after wrap = %d, want 1", b.ID())
	}
}
