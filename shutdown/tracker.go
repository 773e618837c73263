// Package shutdown coordinates graceful termination of the command line tool:
// in-flight invocations are drained, then registered cleanup runs in
// priority order.
package shutdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when an operation starts after shutdown began.
var ErrClosed = errors.New("shutdown in progress")

// ErrWaitTimeout is returned when in-flight operations outlive the drain timeout.
var ErrWaitTimeout = errors.New("operations did not complete in time")

// Tracker counts in-flight operations and refuses new ones once closed.
//
//	if !tracker.Start() {
//		return ErrClosed
//	}
//	defer tracker.Done()
type Tracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	active atomic.Int64
	closed bool
}

// NewTracker returns an open Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start registers an operation. It returns false once Close has been called;
// otherwise the caller must call Done exactly once.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Done marks an operation as complete.
func (t *Tracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Close stops new operations from starting.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Wait blocks until every started operation is done or timeout elapses.
func (t *Tracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Active returns the number of operations in flight.
func (t *Tracker) Active() int64 {
	return t.active.Load()
}

// IsClosed reports whether Close has been called.
func (t *Tracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
