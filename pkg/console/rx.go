package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/handoff"
	"github.com/robotalks/taskcore/pkg/mbox"
	"github.com/robotalks/taskcore/pkg/wakeup"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

// Messages published by the RX task.
const (
	EraseSequence     = "\b \b"
	OverflowMessage   = "\r\nError: Buffer overflow!\r\n"
	QueueFullMessage  = "\r\nError: Command queue full!\r\n"
	CommandQueueDepth = 5
)

// RX task defaults.
const (
	DefaultReadTimeout  = time.Second
	DefaultSendTimeout  = 100 * time.Millisecond
	DefaultStartupDelay = 100 * time.Millisecond
	RXWatchdogName      = "UART_Task"
	RXWatchdogTimeout   = 5 * time.Second
)

var (
	// ErrOverflow indicates an input line exceeded the command capacity.
	ErrOverflow = errors.New("console: buffer overflow")
)

// Publisher accepts output payloads.
type Publisher interface {
	Publish(p []byte) error
}

// CommandQueue carries complete commands to the command task.
type CommandQueue = mbox.Channel[Command]

// NewCommandQueue creates the command channel with the default depth.
func NewCommandQueue() *CommandQueue {
	return mbox.New[Command](CommandQueueDepth)
}

// RXTask consumes input bytes, echoes them and forwards complete commands.
type RXTask struct {
	Input    *handoff.Reader
	Output   Publisher
	Commands *CommandQueue
	Notifier wakeup.Notifier
	Watchdog *watchdog.Registry

	// Banner is published once before the first byte is read.
	Banner func(Publisher)

	ReadTimeout  time.Duration
	SendTimeout  time.Duration
	StartupDelay time.Duration
	WatchdogName string
	WatchdogTime time.Duration

	parser *Parser
	echo   [1]byte

	readyOnce sync.Once
	readyDone sync.Once
	ready     chan struct{}
}

// NewRXTask creates an RXTask with defaults.
func NewRXTask(in *handoff.Reader, out Publisher, cmds *CommandQueue, n wakeup.Notifier) *RXTask {
	return &RXTask{
		Input:        in,
		Output:       out,
		Commands:     cmds,
		Notifier:     n,
		ReadTimeout:  DefaultReadTimeout,
		SendTimeout:  DefaultSendTimeout,
		StartupDelay: DefaultStartupDelay,
		WatchdogName: RXWatchdogName,
		WatchdogTime: RXWatchdogTimeout,
		parser:       NewParser(MaxCommandLength),
	}
}

// Name implements framework.Named.
func (t *RXTask) Name() string { return t.WatchdogName }

// Ready is closed once startup input has been discarded and the banner
// published. Bytes written after that are processed as commands.
func (t *RXTask) Ready() <-chan struct{} {
	return t.readyCh()
}

func (t *RXTask) readyCh() chan struct{} {
	t.readyOnce.Do(func() { t.ready = make(chan struct{}) })
	return t.ready
}

// Run implements framework.Runnable.
func (t *RXTask) Run(ctx context.Context) error {
	if t.parser == nil {
		t.parser = NewParser(MaxCommandLength)
	}
	wd := watchdog.InvalidHandle
	if t.Watchdog != nil {
		h, err := t.Watchdog.Register(t.WatchdogName, t.WatchdogTime)
		if err != nil {
			glog.Warningf("console: watchdog register %q: %v", t.WatchdogName, err)
		}
		wd = h
	}

	if t.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.StartupDelay):
		}
	}
	// Bytes received before startup are line noise.
	if n := t.Input.Available(); n > 0 {
		t.Input.ReadInto(make([]byte, n))
		glog.V(2).Infof("console: discarded %d stale bytes", n)
	}
	if t.Banner != nil {
		t.Banner(t.Output)
	}
	t.readyDone.Do(func() { close(t.readyCh()) })

	for {
		b, ok, err := t.Input.ReadContext(ctx, t.ReadTimeout)
		if err != nil {
			return err
		}
		if ok {
			if err := t.apply(ctx, t.parser.Parse(b)); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if t.Watchdog != nil {
			t.Watchdog.Feed(wd)
		}
	}
}

func (t *RXTask) apply(ctx context.Context, pr ParseResult) error {
	switch pr.Action {
	case ActionEcho:
		t.publishEcho(pr.Echo)
	case ActionErase:
		t.publish(EraseSequence)
	case ActionOverflow:
		t.publishEcho(pr.Echo)
		t.publish(OverflowMessage)
		return ErrOverflow
	case ActionCommand:
		if err := t.Commands.SendContext(ctx, pr.Command, t.SendTimeout); err != nil {
			glog.Warningf("console: drop command %q: %v", pr.Command.String(), err)
			if errors.Is(err, mbox.ErrFull) {
				t.publish(QueueFullMessage)
			}
			return err
		}
		t.Notifier.Notify()
	}
	return nil
}

func (t *RXTask) publishEcho(b byte) {
	t.echo[0] = b
	if err := t.Output.Publish(t.echo[:]); err != nil {
		glog.V(2).Infof("console: echo dropped: %v", err)
	}
}

func (t *RXTask) publish(msg string) {
	if err := t.Output.Publish([]byte(msg)); err != nil {
		glog.Warningf("console: publish %q: %v", msg, err)
	}
}
