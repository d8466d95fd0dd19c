// Package system assembles the fixed set of channels and tasks into one
// process-wide context object.
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/broadcast"
	"github.com/robotalks/taskcore/pkg/console"
	fx "github.com/robotalks/taskcore/pkg/framework"
	"github.com/robotalks/taskcore/pkg/handoff"
	"github.com/robotalks/taskcore/pkg/mbox"
	"github.com/robotalks/taskcore/pkg/menu"
	"github.com/robotalks/taskcore/pkg/wakeup"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

// Tasks registered with the watchdog.
var watchdogTasks = []string{
	console.RXWatchdogName,
	console.CMDWatchdogName,
	broadcast.DefaultWatchdogName,
}

// Deps are the external collaborators.
type Deps struct {
	// Transmitter is the exclusive output resource. Required.
	Transmitter broadcast.Transmitter
	// Handler processes commands. Defaults to the LED menu.
	Handler console.Handler
	// LEDs is used by the default menu.
	LEDs menu.PatternSetter
	// AlertHandlers receive structured watchdog alerts.
	AlertHandlers []watchdog.AlertHandler
	// Clock replaces time.Now in the watchdog registry.
	Clock func() time.Time
}

// IRQ is the interrupt-side handle. It exposes only non-blocking operations.
type IRQ struct {
	w *handoff.Writer
}

// Write passes one received byte to the console task.
func (q IRQ) Write(b byte) bool { return q.w.Write(b) }

// WriteFrom passes received bytes, returning how many were accepted.
func (q IRQ) WriteFrom(p []byte) int { return q.w.WriteFrom(p) }

// Dropped returns the number of bytes lost to overflow.
func (q IRQ) Dropped() uint64 { return q.w.Dropped() }

// System owns every channel and task.
type System struct {
	Config   *Config
	Registry *watchdog.Registry
	Output   *broadcast.Service
	Commands *console.CommandQueue
	Signal   *wakeup.Signal
	RX       *console.RXTask
	Handler  *console.CommandTask
	Monitor  *watchdog.Monitor
	Menu     *menu.Menu

	irq    IRQ
	reader *handoff.Reader
}

// New creates the system from config.
func (c *Config) New(deps Deps) (*System, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if deps.Transmitter == nil {
		return nil, fmt.Errorf("transmitter is required")
	}
	w, r, err := handoff.New(c.HandoffSize, c.HandoffTrigger)
	if err != nil {
		return nil, err
	}

	var regOpts []watchdog.RegistryOption
	if deps.Clock != nil {
		regOpts = append(regOpts, watchdog.WithClock(deps.Clock))
	}
	s := &System{
		Config:   c,
		Registry: watchdog.NewRegistry(c.Watchdog.Capacity, regOpts...),
		Commands: mbox.New[console.Command](c.CommandDepth),
		Signal:   wakeup.New(console.CMDWatchdogName),
		irq:      IRQ{w: w},
		reader:   r,
	}
	wdTimeout := ms(c.Watchdog.TimeoutMs)
	s.Output = broadcast.New(deps.Transmitter,
		broadcast.WithDepth(c.OutputDepth),
		broadcast.WithEnqueueTimeout(ms(c.EnqueueTimeoutMs)),
		broadcast.WithReceiveTimeout(ms(c.ReceiveTimeoutMs)),
		broadcast.WithWatchdog(s.Registry, broadcast.DefaultWatchdogName, wdTimeout))

	handler := deps.Handler
	if handler == nil {
		s.Menu = menu.New(s.Output, deps.LEDs)
		handler = s.Menu
	}

	s.RX = console.NewRXTask(r, s.Output, s.Commands, s.Signal.Notifier())
	s.RX.Watchdog = s.Registry
	s.RX.ReadTimeout = ms(c.ReadTimeoutMs)
	s.RX.SendTimeout = console.DefaultSendTimeout
	s.RX.StartupDelay = ms(c.StartupDelayMs)
	s.RX.WatchdogTime = wdTimeout
	if s.Menu != nil {
		s.RX.Banner = s.Menu.Banner
	}

	s.Handler = console.NewCommandTask(s.Commands, s.Signal, handler)
	s.Handler.Watchdog = s.Registry
	s.Handler.WaitTimeout = ms(c.WaitTimeoutMs)
	s.Handler.WatchdogTime = wdTimeout

	monOpts := []watchdog.MonitorOption{
		watchdog.WithPeriod(ms(c.Watchdog.PeriodMs)),
		watchdog.WithPublisher(s.Output.Immediate()),
	}
	for _, h := range deps.AlertHandlers {
		monOpts = append(monOpts, watchdog.WithAlertHandler(h))
	}
	s.Monitor = watchdog.NewMonitor(s.Registry, monOpts...)
	return s, nil
}

// MustNew creates the system and fails on error.
func (c *Config) MustNew(deps Deps) *System {
	s, err := c.New(deps)
	if err != nil {
		glog.Fatalf("create system: %v", err)
	}
	return s
}

// IRQ returns the interrupt-side handle.
func (s *System) IRQ() IRQ { return s.irq }

// Publisher returns the output surface for other producers.
func (s *System) Publisher() broadcast.Publisher { return s.Output }

// WaitReady blocks until the console accepts input. Bytes passed through IRQ
// before that are discarded as line noise.
func (s *System) WaitReady(ctx context.Context) error {
	select {
	case <-s.RX.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Idle reports whether no input, command or output is waiting.
func (s *System) Idle() bool {
	return s.reader.Available() == 0 && s.Commands.Len() == 0 && s.Output.Pending() == 0
}

// AddTasks implements framework.TaskAdder.
func (s *System) AddTasks(r *fx.Runner) {
	r.Go(s.Monitor, s.Output, s.Handler, s.RX)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
