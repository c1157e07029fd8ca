package services

import "sync"

// completionSignal is raised once and stays raised.
type completionSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newCompletionSignal() *completionSignal {
	return &completionSignal{ch: make(chan struct{})}
}

func (s *completionSignal) Raise() {
	s.once.Do(func() {
		close(s.ch)
	})
}

func (s *completionSignal) Done() <-chan struct{} {
	return s.ch
}

func (s *completionSignal) IsRaised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
