package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// DefaultPeriod is the monitor scan period.
const DefaultPeriod = time.Second

// Alert reports a task that exceeded its timeout.
type Alert struct {
	Handle  Handle
	ID      int
	Name    string
	Elapsed time.Duration
	Timeout time.Duration
	// Count is the total number of alerts raised for this entry,
	// including this one.
	Count   uint32
	At      time.Time
	EventID uuid.UUID
}

// FormatAlert renders the human-readable alert block.
func FormatAlert(a Alert) string {
	return fmt.Sprintf("\r\n*** WATCHDOG ALERT ***\r\n"+
		"Task: %s (ID=%d)\r\n"+
		"Last feed: %d ms ago\r\n"+
		"Timeout: %d ms\r\n"+
		"Status: HUNG or DEADLOCKED!\r\n",
		a.Name, a.ID, a.Elapsed.Milliseconds(), a.Timeout.Milliseconds())
}

// AlertHandler receives alerts on the monitor goroutine. It must not block
// for long.
type AlertHandler func(Alert)

// Publisher accepts text payloads for the output resource.
type Publisher interface {
	Publish(p []byte) error
}

// Monitor scans a Registry periodically.
type Monitor struct {
	reg       *Registry
	period    time.Duration
	handlers  []AlertHandler
	publisher Publisher
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithPeriod sets the scan period.
func WithPeriod(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.period = d
		}
	}
}

// WithAlertHandler adds a structured alert callback.
func WithAlertHandler(h AlertHandler) MonitorOption {
	return func(m *Monitor) { m.handlers = append(m.handlers, h) }
}

// WithPublisher emits FormatAlert text through p for every alert.
func WithPublisher(p Publisher) MonitorOption {
	return func(m *Monitor) { m.publisher = p }
}

// NewMonitor creates a monitor for reg.
func NewMonitor(reg *Registry, opts ...MonitorOption) *Monitor {
	m := &Monitor{reg: reg, period: DefaultPeriod}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Name implements framework.Named.
func (m *Monitor) Name() string { return "watchdog" }

// Period returns the scan period.
func (m *Monitor) Period() time.Duration { return m.period }

// Run scans every period until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(m.reg.now())
		}
	}
}

// Check performs a single scan at now and dispatches the resulting alerts.
func (m *Monitor) Check(now time.Time) []Alert {
	alerts := m.reg.Scan(now)
	for _, a := range alerts {
		glog.Errorf("watchdog: task %q (ID=%d) not fed for %v (timeout %v, alert #%d)",
			a.Name, a.ID, a.Elapsed, a.Timeout, a.Count)
		if m.publisher != nil {
			if err := m.publisher.Publish([]byte(FormatAlert(a))); err != nil {
				glog.Warningf("watchdog: publish alert for %q: %v", a.Name, err)
			}
		}
		for _, h := range m.handlers {
			h(a)
		}
	}
	return alerts
}
