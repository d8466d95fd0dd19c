// Package wakeup provides a coalesced, allocation-free task wake-up signal.
package wakeup

import (
	"context"
	"time"
)

// Notifier raises a signal. It is the only surface handed to producers and
// interrupt code; Notify never blocks.
type Notifier interface {
	Notify()
}

// Signal wakes exactly one owning task. Raising it several times before the
// owner waits results in a single wake.
type Signal struct {
	owner   string
	pending chan struct{}
}

// New creates a Signal owned by the named task.
func New(owner string) *Signal {
	return &Signal{owner: owner, pending: make(chan struct{}, 1)}
}

// Owner returns the name of the task waiting on this signal.
func (s *Signal) Owner() string { return s.owner }

// Notify marks the signal pending. Safe from any goroutine, O(1).
func (s *Signal) Notify() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Notifier returns the producer-only view of the signal. It cannot be
// converted back to the Signal.
func (s *Signal) Notifier() Notifier { return notifier{s} }

type notifier struct {
	s *Signal
}

func (n notifier) Notify() { n.s.Notify() }

// Pending reports whether a notify has not been consumed yet.
func (s *Signal) Pending() bool { return len(s.pending) > 0 }

// Wait blocks until the signal is raised or timeout elapses, and reports
// whether a notify was consumed. A zero timeout only checks.
func (s *Signal) Wait(timeout time.Duration) bool {
	ok, _ := s.WaitContext(context.Background(), timeout)
	return ok
}

// WaitContext is Wait which also returns ctx.Err() when ctx is done first.
func (s *Signal) WaitContext(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-s.pending:
		return true, nil
	default:
	}
	if timeout <= 0 {
		return false, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.pending:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
