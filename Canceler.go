// Copyright 2021 Edgecast Inc

package icmpping

import (
	"sync/atomic"
)

// Canceler is the cancellation token handed to a Session.
// The first Cancel asks the session to stop after the in-flight cycle.
// The second one forces it to return at once, without a summary.
type Canceler struct {
	requests int32
	stopCh   chan struct{}
	forceCh  chan struct{}
}

// NewCanceler returns a Canceler with nothing requested
func NewCanceler() *Canceler {
	return &Canceler{
		stopCh:  make(chan struct{}),
		forceCh: make(chan struct{}),
	}
}

// Cancel records one request and reports whether it was the forcing one.
// It only flips state, so it is safe to call from a signal goroutine.
func (c *Canceler) Cancel() (forced bool) {
	switch atomic.AddInt32(&c.requests, 1) {
	case 1:
		close(c.stopCh)
	case 2:
		close(c.forceCh)
		forced = true
	}
	return forced
}

// StopCh is closed by the first Cancel
func (c *Canceler) StopCh() <-chan struct{} {
	return c.stopCh
}

// ForceCh is closed by the second Cancel
func (c *Canceler) ForceCh() <-chan struct{} {
	return c.forceCh
}

func (c *Canceler) Stopping() bool {
	return atomic.LoadInt32(&c.requests) >= 1
}

func (c *Canceler) Forced() bool {
	return atomic.LoadInt32(&c.requests) >= 2
}
