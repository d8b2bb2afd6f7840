package api

import (
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/engine"
)

// liveRetention is how long a completed handle stays addressable after it
// finished. Older ones are served from the journal.
const liveRetention = time.Minute

// liveActions indexes handles submitted through the API by ref.
type liveActions struct {
	mu      sync.Mutex
	actions map[string]*engine.Action
}

func newLiveActions() *liveActions {
	return &liveActions{actions: make(map[string]*engine.Action)}
}

// add tracks a and prunes handles that completed long enough ago.
func (l *liveActions) add(a *engine.Action) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-liveRetention)
	for ref, old := range l.actions {
		if fin := old.Info().FinishedAt; fin != nil && fin.Before(cutoff) {
			delete(l.actions, ref)
		}
	}
	l.actions[a.Ref()] = a
}

func (l *liveActions) get(ref string) (*engine.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.actions[ref]
	return a, ok
}
