// Package handoff provides the byte hand-off channel between an interrupt
// context and a single consumer task.
//
// The channel is a single-producer, single-consumer ring. The producer side
// (Writer) never blocks and is the only handle interrupt code may hold. The
// consumer side (Reader) blocks on a real channel wait until enough bytes are
// buffered or a timeout expires.
package handoff

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Default sizes.
const (
	DefaultSize    = 128
	DefaultTrigger = 1
)

var (
	// ErrInvalidSize indicates the ring size is not a power of two >= 2.
	ErrInvalidSize = errors.New("handoff: size must be a power of two >= 2")
	// ErrInvalidTrigger indicates the trigger level is outside [1, size].
	ErrInvalidTrigger = errors.New("handoff: trigger level out of range")
)

type ring struct {
	buf     []byte
	mask    uint32
	trigger uint32

	rd atomic.Uint32 // consumer index (monotonic)
	wr atomic.Uint32 // producer index (monotonic)

	// waiting is set by the reader right before it blocks. The writer
	// clears it with CAS so a blocking episode is woken at most once.
	waiting atomic.Bool
	wake    chan struct{}

	dropped atomic.Uint64
}

func (r *ring) size() uint32 { return uint32(len(r.buf)) }

func (r *ring) available() uint32 {
	return r.wr.Load() - r.rd.Load()
}

// Writer is the interrupt-side handle. None of its methods block.
type Writer struct {
	r *ring
}

// Reader is the task-side handle. It must be used by a single task.
type Reader struct {
	r *ring
}

// New creates a hand-off channel with the given ring size and trigger level,
// returning its two ends.
func New(size, trigger int) (*Writer, *Reader, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, nil, ErrInvalidSize
	}
	if trigger < 1 || trigger > size {
		return nil, nil, ErrInvalidTrigger
	}
	r := &ring{
		buf:     make([]byte, size),
		mask:    uint32(size - 1),
		trigger: uint32(trigger),
		wake:    make(chan struct{}, 1),
	}
	return &Writer{r: r}, &Reader{r: r}, nil
}

// Write stores one byte. It returns false when the ring is full; the byte
// is dropped and counted, unread data is never overwritten.
func (w *Writer) Write(b byte) bool {
	r := w.r
	rd := r.rd.Load()
	wr := r.wr.Load()
	if wr-rd >= r.size() {
		r.dropped.Add(1)
		return false
	}
	r.buf[wr&r.mask] = b
	r.wr.Store(wr + 1) // release
	w.notify(wr + 1 - rd)
	return true
}

// WriteFrom stores as many bytes of p as fit and returns the count.
// Bytes that do not fit are dropped and counted.
func (w *Writer) WriteFrom(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	r := w.r
	rd := r.rd.Load()
	wr := r.wr.Load()
	space := int(r.size() - (wr - rd))
	n := len(p)
	if n > space {
		r.dropped.Add(uint64(n - space))
		n = space
	}
	if n == 0 {
		return 0
	}
	size := r.size()
	wrIdx := wr & r.mask
	first := int(size - wrIdx)
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+uint32(first)], p[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], p[first:n])
	}
	r.wr.Store(wr + uint32(n))
	w.notify(wr + uint32(n) - rd)
	return n
}

func (w *Writer) notify(avail uint32) {
	r := w.r
	if avail < r.trigger {
		return
	}
	if r.waiting.CompareAndSwap(true, false) {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Dropped returns the number of bytes rejected because the ring was full.
func (w *Writer) Dropped() uint64 {
	return w.r.dropped.Load()
}

// Available returns the number of buffered bytes.
func (rd *Reader) Available() int {
	return int(rd.r.available())
}

// Read returns the next byte, blocking until at least the trigger level is
// buffered or timeout elapses. On timeout a byte is still returned if any is
// buffered; otherwise ok is false.
func (rd *Reader) Read(timeout time.Duration) (b byte, ok bool) {
	b, ok, _ = rd.ReadContext(context.Background(), timeout)
	return
}

// ReadContext is Read which also returns early with ctx.Err() when ctx is done.
func (rd *Reader) ReadContext(ctx context.Context, timeout time.Duration) (byte, bool, error) {
	r := rd.r
	if r.available() >= r.trigger {
		b, ok := rd.take()
		return b, ok, nil
	}
	if timeout <= 0 {
		b, ok := rd.take()
		return b, ok, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		// Discard a wake left over from an earlier episode.
		select {
		case <-r.wake:
		default:
		}
		r.waiting.Store(true)
		if r.available() >= r.trigger {
			r.waiting.Store(false)
			b, ok := rd.take()
			return b, ok, nil
		}
		select {
		case <-r.wake:
			if r.available() >= r.trigger {
				b, ok := rd.take()
				return b, ok, nil
			}
		case <-timer.C:
			r.waiting.Store(false)
			b, ok := rd.take()
			return b, ok, nil
		case <-ctx.Done():
			r.waiting.Store(false)
			return 0, false, ctx.Err()
		}
	}
}

// ReadInto copies up to len(dst) buffered bytes without blocking.
func (rd *Reader) ReadInto(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	r := rd.r
	rdIdx := r.rd.Load()
	wr := r.wr.Load() // acquire
	n := int(wr - rdIdx)
	if n <= 0 {
		return 0
	}
	if len(dst) < n {
		n = len(dst)
	}
	size := r.size()
	start := rdIdx & r.mask
	first := int(size - start)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[start:start+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rdIdx + uint32(n)) // release
	return n
}

func (rd *Reader) take() (byte, bool) {
	r := rd.r
	rdIdx := r.rd.Load()
	if r.wr.Load() == rdIdx {
		return 0, false
	}
	b := r.buf[rdIdx&r.mask]
	r.rd.Store(rdIdx + 1)
	return b, true
}
