// Package mbox provides bounded FIFO message channels with send timeouts.
package mbox

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrFull indicates no slot became free within the send timeout.
	ErrFull = errors.New("mbox: channel full")
	// ErrEmpty indicates no message arrived within the receive timeout.
	ErrEmpty = errors.New("mbox: channel empty")
)

// Channel is a bounded FIFO of values of type T. Any number of producers may
// send concurrently; a single consumer is assumed.
type Channel[T any] struct {
	slots chan T
}

// New creates a Channel with n slots. A non-positive n is a configuration
// fault and panics.
func New[T any](n int) *Channel[T] {
	if n <= 0 {
		panic("mbox: capacity must be positive")
	}
	return &Channel[T]{slots: make(chan T, n)}
}

// Len returns the number of queued messages.
func (c *Channel[T]) Len() int { return len(c.slots) }

// Cap returns the number of slots.
func (c *Channel[T]) Cap() int { return cap(c.slots) }

// Send copies msg into the next free slot, waiting up to timeout for one to
// free up.
func (c *Channel[T]) Send(msg T, timeout time.Duration) error {
	return c.SendContext(context.Background(), msg, timeout)
}

// SendContext is Send which also returns ctx.Err() when ctx is done first.
func (c *Channel[T]) SendContext(ctx context.Context, msg T, timeout time.Duration) error {
	select {
	case c.slots <- msg:
		return nil
	default:
	}
	if timeout <= 0 {
		return ErrFull
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.slots <- msg:
		return nil
	case <-timer.C:
		return ErrFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the oldest message, waiting up to timeout. A zero timeout
// polls and returns ErrEmpty immediately when nothing is queued.
func (c *Channel[T]) Receive(timeout time.Duration) (T, error) {
	return c.ReceiveContext(context.Background(), timeout)
}

// ReceiveContext is Receive which also returns ctx.Err() when ctx is done first.
func (c *Channel[T]) ReceiveContext(ctx context.Context, timeout time.Duration) (msg T, err error) {
	select {
	case msg = <-c.slots:
		return msg, nil
	default:
	}
	if timeout <= 0 {
		return msg, ErrEmpty
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg = <-c.slots:
		return msg, nil
	case <-timer.C:
		return msg, ErrEmpty
	case <-ctx.Done():
		return msg, ctx.Err()
	}
}
