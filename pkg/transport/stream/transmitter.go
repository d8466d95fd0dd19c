// Package stream transmits output over plain byte streams such as stdout or
// an open serial port.
package stream

import (
	"io"
	"sync/atomic"
)

// Transmitter writes each payload to W in full.
type Transmitter struct {
	W io.Writer

	bytes atomic.Uint64
}

// New creates a Transmitter writing to w.
func New(w io.Writer) *Transmitter {
	return &Transmitter{W: w}
}

// Transmit implements broadcast.Transmitter.
func (t *Transmitter) Transmit(p []byte) error {
	for len(p) > 0 {
		n, err := t.W.Write(p)
		t.bytes.Add(uint64(n))
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Bytes returns the number of bytes written.
func (t *Transmitter) Bytes() uint64 { return t.bytes.Load() }
