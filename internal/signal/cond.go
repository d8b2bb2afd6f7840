package signal

import (
	"sync"
	"time"
)

var _ Signal = (*condSignal)(nil)

type condSignal struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  bool
}

// NewCond returns a Signal backed by a condition variable.
func NewCond() Signal {
	s := &condSignal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *condSignal) Set() {
	s.mu.Lock()
	s.set = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *condSignal) Reset() {
	s.mu.Lock()
	s.set = false
	s.mu.Unlock()
}

func (s *condSignal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *condSignal) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set || timeout == 0 {
		return s.set
	}

	if timeout < 0 {
		for !s.set {
			s.cond.Wait()
		}
		return true
	}

	// sync.Cond has no timed wait; a timer broadcasts so the loop can
	// observe the deadline.
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	for !s.set && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	return s.set
}
