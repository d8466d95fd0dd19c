package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordPublisher struct {
	mu  sync.Mutex
	out []string
	err error
}

func (p *recordPublisher) Publish(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, string(b))
	return p.err
}

func TestRegisterCapacity(t *testing.T) {
	r := NewRegistry(2)
	h1, err := r.Register("a", time.Second)
	require.NoError(t, err)
	h2, err := r.Register("b", time.Second)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	h3, err := r.Register("c", time.Second)
	require.True(t, errors.Is(err, ErrRegistryFull))
	require.False(t, h3.Valid())
	require.Equal(t, 2, r.Len())
	require.Equal(t, "a", r.Name(h1))
	require.Equal(t, "b", r.Name(h2))
}

func TestRegisterInvalidTimeout(t *testing.T) {
	r := NewRegistry(2)
	_, err := r.Register("a", 0)
	require.Equal(t, ErrInvalidTimeout, err)
	require.Zero(t, r.Len())
}

func TestFeedUnknownHandleIsNoop(t *testing.T) {
	r := NewRegistry(2)
	r.Feed(InvalidHandle)
	r.Feed(Handle(5))
	require.Zero(t, r.Len())
}

// Fed every 2s for 20s then silent: alert must land in [25s, 26s] after
// the last feed with a 1s scan period.
func TestLivenessWindow(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(DefaultCapacity, WithClock(clk.Now))
	h, err := r.Register("T1", 5000*time.Millisecond)
	require.NoError(t, err)
	start := clk.Now()

	var alerted []Alert
	var lastFeed time.Time
	for ms := 1000; ms <= 40000; ms += 1000 {
		clk.Advance(time.Second)
		if ms <= 20000 && ms%2000 == 0 {
			r.Feed(h)
			lastFeed = clk.Now()
		}
		alerts := r.Scan(clk.Now())
		if ms <= 20000 {
			require.Empty(t, alerts, "false alert at %dms", ms)
		}
		alerted = append(alerted, alerts...)
	}

	require.Len(t, alerted, 1)
	a := alerted[0]
	require.Equal(t, "T1", a.Name)
	require.Equal(t, 20*time.Second, lastFeed.Sub(start))
	since := a.At.Sub(lastFeed)
	require.True(t, since >= 5*time.Second && since <= 6*time.Second, "alert after %v", since)
	require.Equal(t, since, a.Elapsed)
	require.EqualValues(t, 1, a.Count)
}

func TestFeedAfterAlertResumesMonitoring(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(2, WithClock(clk.Now))
	h, err := r.Register("T1", 5*time.Second)
	require.NoError(t, err)

	clk.Advance(6 * time.Second)
	require.Len(t, r.Scan(clk.Now()), 1)
	require.True(t, r.Entries()[0].Alerted)

	r.Feed(h)
	require.False(t, r.Entries()[0].Alerted)
	clk.Advance(time.Second)
	require.Empty(t, r.Scan(clk.Now()))

	clk.Advance(10 * time.Second)
	alerts := r.Scan(clk.Now())
	require.Len(t, alerts, 1)
	require.EqualValues(t, 2, alerts[0].Count)
	require.NotEqual(t, alerts[0].EventID.String(), "")
}

func TestFeedIsMonotonic(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(1, WithClock(clk.Now))
	h, err := r.Register("T1", time.Second)
	require.NoError(t, err)
	clk.Advance(500 * time.Millisecond)
	r.Feed(h)
	before := r.Entries()[0].LastFeed

	clk.Advance(-200 * time.Millisecond)
	r.Feed(h)
	require.Equal(t, before, r.Entries()[0].LastFeed)
}

func TestConcurrentFeedAndScan(t *testing.T) {
	r := NewRegistry(4)
	var handles []Handle
	for i := 0; i < 4; i++ {
		h, err := r.Register(fmt.Sprintf("t%d", i), time.Hour)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				r.Feed(h)
			}
		}(h)
	}
	for i := 0; i < 100; i++ {
		assert.Empty(t, r.Scan(time.Now()))
	}
	wg.Wait()
}

func TestFormatAlert(t *testing.T) {
	text := FormatAlert(Alert{ID: 2, Name: "CMD_Handler", Elapsed: 5100 * time.Millisecond, Timeout: 5 * time.Second})
	require.Equal(t, "\r\n*** WATCHDOG ALERT ***\r\n"+
		"Task: CMD_Handler (ID=2)\r\n"+
		"Last feed: 5100 ms ago\r\n"+
		"Timeout: 5000 ms\r\n"+
		"Status: HUNG or DEADLOCKED!\r\n", text)
}

func TestMonitorCheckDispatches(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(2, WithClock(clk.Now))
	_, err := r.Register("UART_Task", 5*time.Second)
	require.NoError(t, err)

	pub := &recordPublisher{err: errors.New("queue full")}
	var got []Alert
	m := NewMonitor(r,
		WithPeriod(time.Second),
		WithPublisher(pub),
		WithAlertHandler(func(a Alert) { got = append(got, a) }))
	require.Equal(t, time.Second, m.Period())

	clk.Advance(6 * time.Second)
	m.Check(clk.Now())
	m.Check(clk.Now())
	require.Len(t, got, 1)
	require.Equal(t, "UART_Task", got[0].Name)
	require.Len(t, pub.out, 1)
	require.Contains(t, pub.out[0], "Task: UART_Task (ID=0)")
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	r := NewRegistry(1)
	_, err := r.Register("fast", 5*time.Millisecond)
	require.NoError(t, err)

	alerts := make(chan Alert, 1)
	m := NewMonitor(r, WithPeriod(5*time.Millisecond), WithAlertHandler(func(a Alert) {
		select {
		case alerts <- a:
		default:
		}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case a := <-alerts:
		require.Equal(t, "fast", a.Name)
	case <-time.After(time.Second):
		t.Fatal("no alert")
	}
	cancel()
	require.Equal(t, context.Canceled, <-done)
}
