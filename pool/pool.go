package pool

import (
	"sync"
)

// SizedWaitGroup is a WaitGroup with a concurrency ceiling: Add blocks while
// Size goroutines are already running.
type SizedWaitGroup struct {
	wg      sync.WaitGroup
	current chan struct{}
	Size    int
}

// NewSizedGroup creates a new SizedWaitGroup with the specified limit.
// If the limit is less than or equal to 0, it is set to 1.
func NewSizedGroup(limit int) SizedWaitGroup {
	if limit <= 0 {
		limit = 1
	}
	return SizedWaitGroup{
		Size:    limit,
		current: make(chan struct{}, limit),
		wg:      sync.WaitGroup{},
	}
}

// Add increments the SizedWaitGroup counter by one. It blocks until a
// concurrency slot is free.
func (s *SizedWaitGroup) Add() {
	s.current <- struct{}{}
	s.wg.Add(1)
}

// Done decrements the SizedWaitGroup counter by one and frees a slot.
func (s *SizedWaitGroup) Done() {
	<-s.current
	s.wg.Done()
}

// Wait blocks until all operations added to the SizedWaitGroup have completed.
func (s *SizedWaitGroup) Wait() {
	s.wg.Wait()
}
