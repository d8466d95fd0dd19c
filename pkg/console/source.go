package console

import (
	"context"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/framework"
)

// ByteSink is the producer side of the hand-off channel.
type ByteSink interface {
	WriteFrom(p []byte) int
	Dropped() uint64
}

// Source copies an input stream into the hand-off channel. It plays the
// role of the receive interrupt: it never waits for the consumer, bytes that
// do not fit are dropped.
type Source struct {
	Reader io.Reader
	Writer ByteSink
	Label  string

	// Detach makes Run return on cancel without waiting for the pending
	// read, which keeps running until the process exits. Always on for
	// os.Stdin, where Close does not interrupt a read on a terminal.
	Detach bool
}

// Name implements framework.Named.
func (s *Source) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "source"
}

// Run implements framework.Runnable. If Reader is an io.Closer it is closed
// when ctx is done to unblock the pending read.
func (s *Source) Run(ctx context.Context) error {
	if s.Detach || s.Reader == io.Reader(os.Stdin) {
		return s.runDetached(ctx)
	}
	if closer, ok := s.Reader.(io.Closer); ok {
		return framework.RunWithContextCloser(ctx, closer, func() error {
			return s.readLoop(ctx)
		})
	}
	return framework.RunWithContext(ctx, func() error {
		return s.readLoop(ctx)
	})
}

func (s *Source) runDetached(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.readLoop(ctx)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Source) readLoop(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		n, err := s.Reader.Read(buf)
		if n > 0 {
			if accepted := s.Writer.WriteFrom(buf[:n]); accepted < n {
				glog.Warningf("%s: dropped %d bytes (total %d)", s.Name(), n-accepted, s.Writer.Dropped())
			}
		}
		if err != nil {
			if err == io.EOF {
				glog.V(2).Infof("%s: end of input", s.Name())
				<-ctx.Done()
				return ctx.Err()
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
