package signal

import (
	"sync"
	"time"
)

var _ Signal = (*chanSignal)(nil)

// chanSignal closes ch on Set; Reset swaps in a fresh channel.
type chanSignal struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewChan returns a Signal backed by channel close broadcast.
func NewChan() Signal {
	return &chanSignal{ch: make(chan struct{})}
}

func (s *chanSignal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

func (s *chanSignal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

func (s *chanSignal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *chanSignal) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	ch, set := s.ch, s.set
	s.mu.Unlock()

	if set {
		return true
	}

	switch {
	case timeout == 0:
		return false
	case timeout < 0:
		<-ch
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
