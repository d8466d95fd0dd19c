// Package broadcast serializes all output through a single task that
// exclusively owns the transmit resource.
//
// Other components only see Publisher. The Transmitter handed to New is kept
// unexported and is invoked from a single place in Run.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/mbox"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

// Defaults.
const (
	MaxPayloadSize        = 512
	DefaultDepth          = 10
	DefaultEnqueueTimeout = 100 * time.Millisecond
	DefaultReceiveTimeout = 2 * time.Second
	DefaultWatchdogName   = "Print_Task"
	DefaultWatchdog       = 5 * time.Second
)

var (
	// ErrPayloadTooLarge indicates a payload above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("broadcast: payload too large")
	// ErrRunning indicates Run was called while another Run is active.
	ErrRunning = errors.New("broadcast: service already running")
)

// Transmitter is the exclusive output resource.
type Transmitter interface {
	Transmit(p []byte) error
}

// TransmitFunc adapts a function to Transmitter.
type TransmitFunc func(p []byte) error

// Transmit implements Transmitter.
func (f TransmitFunc) Transmit(p []byte) error { return f(p) }

// Publisher is the only surface producers receive.
type Publisher interface {
	Publish(p []byte) error
}

// Payload is a fixed-size copy of published bytes, queued by value.
type Payload struct {
	n   int
	buf [MaxPayloadSize]byte
}

// Bytes returns the payload content.
func (p *Payload) Bytes() []byte { return p.buf[:p.n] }

// Stats are service counters.
type Stats struct {
	Published      uint64
	Rejected       uint64
	Transmitted    uint64
	TransmitErrors uint64
	// Callers is the highest number of concurrent transmit invocations
	// observed. It stays at 1 while the service owns the resource alone.
	Callers int32
}

// Service is the broadcast task.
type Service struct {
	tx             Transmitter
	queue          *mbox.Channel[Payload]
	enqueueTimeout time.Duration
	receiveTimeout time.Duration

	registry   *watchdog.Registry
	wdName     string
	wdTimeout  time.Duration
	running    atomic.Bool
	inTransmit atomic.Int32

	published   atomic.Uint64
	rejected    atomic.Uint64
	transmitted atomic.Uint64
	txErrors    atomic.Uint64
	callers     atomic.Int32
}

// Option customizes a Service.
type Option func(*Service)

// WithDepth sets the output queue depth.
func WithDepth(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = mbox.New[Payload](n)
		}
	}
}

// WithEnqueueTimeout sets how long Publish waits on a full queue.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(s *Service) { s.enqueueTimeout = d }
}

// WithReceiveTimeout sets the idle period after which Run feeds the watchdog
// without output.
func WithReceiveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.receiveTimeout = d
		}
	}
}

// WithWatchdog registers the service loop with reg when Run starts.
func WithWatchdog(reg *watchdog.Registry, name string, timeout time.Duration) Option {
	return func(s *Service) {
		s.registry, s.wdName, s.wdTimeout = reg, name, timeout
	}
}

// New creates a Service owning tx.
func New(tx Transmitter, opts ...Option) *Service {
	s := &Service{
		tx:             tx,
		enqueueTimeout: DefaultEnqueueTimeout,
		receiveTimeout: DefaultReceiveTimeout,
		wdName:         DefaultWatchdogName,
		wdTimeout:      DefaultWatchdog,
	}
	for _, o := range opts {
		o(s)
	}
	if s.queue == nil {
		s.queue = mbox.New[Payload](DefaultDepth)
	}
	return s
}

// Name implements framework.Named.
func (s *Service) Name() string { return s.wdName }

// Publish copies p into the output queue.
func (s *Service) Publish(p []byte) error {
	return s.publish(p, s.enqueueTimeout)
}

// PublishString publishes str.
func (s *Service) PublishString(str string) error {
	if len(str) > MaxPayloadSize {
		s.rejected.Add(1)
		return ErrPayloadTooLarge
	}
	var msg Payload
	msg.n = copy(msg.buf[:], str)
	return s.enqueue(msg, s.enqueueTimeout)
}

// PublishByte publishes a single byte, used for echo.
func (s *Service) PublishByte(b byte) error {
	var msg Payload
	msg.buf[0], msg.n = b, 1
	return s.enqueue(msg, s.enqueueTimeout)
}

// Immediate returns a Publisher which never waits for a free slot. It suits
// callers that must not block, like the watchdog monitor.
func (s *Service) Immediate() Publisher {
	return immediate{s}
}

type immediate struct {
	s *Service
}

func (p immediate) Publish(b []byte) error {
	return p.s.publish(b, 0)
}

func (s *Service) publish(p []byte, timeout time.Duration) error {
	if len(p) > MaxPayloadSize {
		s.rejected.Add(1)
		return ErrPayloadTooLarge
	}
	var msg Payload
	msg.n = copy(msg.buf[:], p)
	return s.enqueue(msg, timeout)
}

func (s *Service) enqueue(msg Payload, timeout time.Duration) error {
	if err := s.queue.Send(msg, timeout); err != nil {
		s.rejected.Add(1)
		return err
	}
	s.published.Add(1)
	return nil
}

// Publishf formats and publishes the result, truncated to MaxPayloadSize.
func (s *Service) Publishf(format string, args ...interface{}) error {
	str := fmt.Sprintf(format, args...)
	if len(str) > MaxPayloadSize {
		str = str[:MaxPayloadSize]
	}
	return s.PublishString(str)
}

// Pending returns the number of queued payloads.
func (s *Service) Pending() int { return s.queue.Len() }

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	return Stats{
		Published:      s.published.Load(),
		Rejected:       s.rejected.Load(),
		Transmitted:    s.transmitted.Load(),
		TransmitErrors: s.txErrors.Load(),
		Callers:        s.callers.Load(),
	}
}

// Run drains the output queue into the transmitter until ctx is done. The
// watchdog is fed on every iteration, with or without output.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	wd := watchdog.InvalidHandle
	if s.registry != nil {
		h, err := s.registry.Register(s.wdName, s.wdTimeout)
		if err != nil {
			glog.Warningf("broadcast: watchdog register %q: %v", s.wdName, err)
		}
		wd = h
	}

	for {
		msg, err := s.queue.ReceiveContext(ctx, s.receiveTimeout)
		switch {
		case err == nil:
			s.transmit(msg.Bytes())
		case errors.Is(err, mbox.ErrEmpty):
		default:
			return err
		}
		if s.registry != nil {
			s.registry.Feed(wd)
		}
	}
}

func (s *Service) transmit(p []byte) {
	n := s.inTransmit.Add(1)
	defer s.inTransmit.Add(-1)
	for {
		peak := s.callers.Load()
		if n <= peak || s.callers.CompareAndSwap(peak, n) {
			break
		}
	}

	if err := s.tx.Transmit(p); err != nil {
		s.txErrors.Add(1)
		glog.Errorf("broadcast: transmit %d bytes: %v", len(p), err)
		return
	}
	s.transmitted.Add(1)
	if glog.V(4) {
		glog.Infof("broadcast: transmitted %d bytes", len(p))
	}
}

// Tee returns a Transmitter sending each payload to every tx in order. All
// transmitters are tried; the first error is returned.
func Tee(txs ...Transmitter) Transmitter {
	return TransmitFunc(func(p []byte) error {
		var first error
		for _, tx := range txs {
			if err := tx.Transmit(p); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
