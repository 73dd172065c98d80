// Copyright 2021 Edgecast Inc

package icmpping

import (
	"sync"
	"testing"
)

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// TestCanceler checks the two stages of the token
func TestCanceler(t *testing.T) {
	c := NewCanceler()

	if c.Stopping() || c.Forced() || closed(c.StopCh()) || closed(c.ForceCh()) {
		t.Fatalf("fresh Canceler already cancelled")
	}

	if forced := c.Cancel(); forced {
		t.Errorf("first Cancel reported forced")
	}
	if !c.Stopping() || !closed(c.StopCh()) {
		t.Errorf("first Cancel did not stop")
	}
	if c.Forced() || closed(c.ForceCh()) {
		t.Errorf("first Cancel forced")
	}

	if forced := c.Cancel(); !forced {
		t.Errorf("second Cancel did not report forced")
	}
	if !c.Forced() || !closed(c.ForceCh()) {
		t.Errorf("second Cancel did not force")
	}

	// further requests change nothing and must not close twice
	if forced := c.Cancel(); forced {
		t.Errorf("third Cancel reported forced")
	}
}

// TestCancelerConcurrent closes each channel exactly once under concurrent cancels
func TestCancelerConcurrent(t *testing.T) {
	c := NewCanceler()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		forces int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Cancel() {
				mu.Lock()
				forces++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if forces != 1 {
		t.Errorf("forces:%d != 1", forces)
	}
	if !c.Stopping() || !c.Forced() {
		t.Errorf("Stopping:%t Forced:%t", c.Stopping(), c.Forced())
	}
}
