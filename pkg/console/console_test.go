package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/taskcore/pkg/handoff"
	"github.com/robotalks/taskcore/pkg/mbox"
	"github.com/robotalks/taskcore/pkg/wakeup"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

type capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func (c *capture) Publish(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.buf.Write(p)
	return nil
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (n *countingNotifier) Notify() {
	n.mu.Lock()
	n.n++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.n
}

func newTestRX(t *testing.T, depth int) (*RXTask, *capture, *countingNotifier) {
	_, r, err := handoff.New(handoff.DefaultSize, handoff.DefaultTrigger)
	require.NoError(t, err)
	out := &capture{}
	notifier := &countingNotifier{}
	rx := NewRXTask(r, out, mbox.New[Command](depth), notifier)
	rx.SendTimeout = 5 * time.Millisecond
	return rx, out, notifier
}

func feed(rx *RXTask, in string) (errs []error) {
	for i := 0; i < len(in); i++ {
		if err := rx.apply(context.Background(), rx.parser.Parse(in[i])); err != nil {
			errs = append(errs, err)
		}
	}
	return
}

func TestRXEchoAndCommand(t *testing.T) {
	rx, out, notifier := newTestRX(t, CommandQueueDepth)
	require.Empty(t, feed(rx, "1x\b\r"))
	require.Equal(t, "1x"+EraseSequence, out.String())
	require.Equal(t, 1, notifier.count())

	cmd, err := rx.Commands.Receive(0)
	require.NoError(t, err)
	require.Equal(t, "1", cmd.String())
}

func TestRXOverflow(t *testing.T) {
	rx, out, notifier := newTestRX(t, CommandQueueDepth)
	errs := feed(rx, strings.Repeat("a", MaxCommandLength+1))
	require.Len(t, errs, 1)
	require.Equal(t, ErrOverflow, errs[0])
	require.True(t, strings.HasSuffix(out.String(), OverflowMessage))
	require.Zero(t, rx.Commands.Len())
	require.Zero(t, notifier.count())
}

func TestRXQueueFull(t *testing.T) {
	rx, out, notifier := newTestRX(t, 1)
	require.Empty(t, feed(rx, "1\r"))
	errs := feed(rx, "2\r")
	require.Len(t, errs, 1)
	require.True(t, errors.Is(errs[0], mbox.ErrFull))
	require.True(t, strings.HasSuffix(out.String(), QueueFullMessage))
	require.Equal(t, 1, notifier.count())
}

func TestRXEchoBackpressureIgnored(t *testing.T) {
	rx, out, notifier := newTestRX(t, CommandQueueDepth)
	out.err = mbox.ErrFull
	require.Empty(t, feed(rx, "2\n"))
	require.Equal(t, 1, notifier.count())
}

func TestPipelineEndToEnd(t *testing.T) {
	w, r, err := handoff.New(handoff.DefaultSize, handoff.DefaultTrigger)
	require.NoError(t, err)
	out := &capture{}
	reg := watchdog.NewRegistry(4)
	cmds := NewCommandQueue()
	sig := wakeup.New(CMDWatchdogName)

	var mu sync.Mutex
	var handled []string
	rx := NewRXTask(r, out, cmds, sig.Notifier())
	rx.Watchdog = reg
	rx.StartupDelay = 0
	rx.ReadTimeout = 10 * time.Millisecond
	rx.Banner = func(p Publisher) { p.Publish([]byte("hello\r\n")) }
	cmd := NewCommandTask(cmds, sig, HandlerFunc(func(c string) {
		mu.Lock()
		handled = append(handled, c)
		mu.Unlock()
	}))
	cmd.Watchdog = reg
	cmd.WaitTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() { done <- rx.Run(ctx) }()
	go func() { done <- cmd.Run(ctx) }()

	require.Eventually(t, func() bool { return reg.Len() == 2 && out.String() != "" }, time.Second, time.Millisecond)
	w.WriteFrom([]byte(" LED \r\n2\r"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.Equal(t, context.Canceled, <-done)
	require.Equal(t, context.Canceled, <-done)
	require.Equal(t, []string{"led", "2"}, handled)
	require.True(t, strings.HasPrefix(out.String(), "hello\r\n LED 2"))
	require.Empty(t, reg.Scan(time.Now()))
}

func TestSourceCopiesIntoHandoff(t *testing.T) {
	w, r, err := handoff.New(8, 1)
	require.NoError(t, err)
	src := &Source{Reader: bytes.NewReader([]byte("0123456789")), Writer: w}
	require.Equal(t, "source", src.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()
	require.Eventually(t, func() bool { return w.Dropped() == 2 }, time.Second, time.Millisecond)
	cancel()
	require.Equal(t, context.Canceled, <-done)

	buf := make([]byte, 16)
	n := r.ReadInto(buf)
	require.Equal(t, "01234567", string(buf[:n]))
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fedAt(reg *watchdog.Registry, name string, now time.Time) bool {
	for _, st := range reg.Entries() {
		if st.Name == name {
			return st.LastFeed.Equal(now)
		}
	}
	return false
}

func TestIdleTasksFeedWatchdog(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := watchdog.NewRegistry(4, watchdog.WithClock(clock.Now))
	const wdTimeout = 50 * time.Millisecond

	_, r, err := handoff.New(handoff.DefaultSize, handoff.DefaultTrigger)
	require.NoError(t, err)
	cmds := NewCommandQueue()
	sig := wakeup.New(CMDWatchdogName)

	rx := NewRXTask(r, &capture{}, cmds, sig.Notifier())
	rx.Watchdog = reg
	rx.StartupDelay = 0
	rx.ReadTimeout = 2 * time.Millisecond
	rx.WatchdogTime = wdTimeout
	cmd := NewCommandTask(cmds, sig, HandlerFunc(func(string) {}))
	cmd.Watchdog = reg
	cmd.WaitTimeout = 2 * time.Millisecond
	cmd.WatchdogTime = wdTimeout

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() { done <- rx.Run(ctx) }()
	go func() { done <- cmd.Run(ctx) }()
	require.Eventually(t, func() bool { return reg.Len() == 2 }, time.Second, time.Millisecond)

	// No input at all: only the timeout path can keep both entries fresh.
	for i := 0; i < 10; i++ {
		clock.Advance(wdTimeout * 4 / 5)
		now := clock.Now()
		require.Eventually(t, func() bool {
			return fedAt(reg, RXWatchdogName, now) && fedAt(reg, CMDWatchdogName, now)
		}, time.Second, time.Millisecond, "step %d", i)
		require.Empty(t, reg.Scan(now), "step %d", i)
	}

	cancel()
	require.Equal(t, context.Canceled, <-done)
	require.Equal(t, context.Canceled, <-done)

	clock.Advance(wdTimeout + time.Millisecond)
	alerts := reg.Scan(clock.Now())
	require.Len(t, alerts, 2)
	names := []string{alerts[0].Name, alerts[1].Name}
	require.ElementsMatch(t, []string{RXWatchdogName, CMDWatchdogName}, names)
}

type stuckReader struct {
	release chan struct{}
}

func (r *stuckReader) Read(p []byte) (int, error) {
	<-r.release
	return 0, io.EOF
}

func TestDetachedSourceStopsDuringRead(t *testing.T) {
	w, _, err := handoff.New(8, 1)
	require.NoError(t, err)
	in := &stuckReader{release: make(chan struct{})}
	defer close(in.release)
	src := &Source{Reader: in, Writer: w, Detach: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("Run blocked on a pending read")
	}
}
