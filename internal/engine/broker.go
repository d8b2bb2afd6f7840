package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// maxClosedMarkers bounds how many finished topics are remembered for late
// subscribers. The oldest markers are evicted first.
const maxClosedMarkers = 1024

// Event describes one lifecycle transition of an action.
type Event struct {
	Ref      string    `json:"ref"`
	ActionID int64     `json:"action_id"`
	Name     string    `json:"name,omitempty"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	WorkerID int       `json:"worker_id,omitempty"`
	At       time.Time `json:"at"`
}

// EventBroker fans out action lifecycle events to subscribers keyed by
// action ref. It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after an action completed) receive a closed channel instead of
// blocking forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	closed []string
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives events for the given action ref
// and an unsubscribe function. If the action already completed (Close was
// called), the returned channel is immediately closed.
func (b *EventBroker) Subscribe(ref string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ref]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[ref] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
		if !t.closed && len(t.subs) == 0 && b.topics[ref] == t {
			delete(b.topics, ref)
		}
	}
}

// Publish sends an event to all subscribers of ev.Ref. Events for refs
// nobody subscribed to are discarded.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.Ref]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop the event for slow subscribers to avoid blocking workers.
		}
	}
}

// Close signals that no more events will be published for ref. All
// subscriber channels are closed and future Subscribe calls return a closed
// channel.
func (b *EventBroker) Close(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ref]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[ref] = t
	}
	if t.closed {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closed = append(b.closed, ref)
	for len(b.closed) > maxClosedMarkers {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}
