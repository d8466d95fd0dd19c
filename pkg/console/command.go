package console

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/wakeup"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

// Command task defaults.
const (
	DefaultWaitTimeout = 2 * time.Second
	CMDWatchdogName    = "CMD_Handler"
	CMDWatchdogTimeout = 5 * time.Second
)

// Handler processes normalized commands.
type Handler interface {
	HandleCommand(cmd string)
}

// HandlerFunc is func type of Handler.
type HandlerFunc func(cmd string)

// HandleCommand implements Handler.
func (f HandlerFunc) HandleCommand(cmd string) {
	f(cmd)
}

// CommandTask waits for the command signal and drains the command queue.
type CommandTask struct {
	Commands *CommandQueue
	Signal   *wakeup.Signal
	Handler  Handler
	Watchdog *watchdog.Registry

	WaitTimeout  time.Duration
	WatchdogName string
	WatchdogTime time.Duration
}

// NewCommandTask creates a CommandTask with defaults.
func NewCommandTask(cmds *CommandQueue, sig *wakeup.Signal, h Handler) *CommandTask {
	return &CommandTask{
		Commands:     cmds,
		Signal:       sig,
		Handler:      h,
		WaitTimeout:  DefaultWaitTimeout,
		WatchdogName: CMDWatchdogName,
		WatchdogTime: CMDWatchdogTimeout,
	}
}

// Name implements framework.Named.
func (t *CommandTask) Name() string { return t.WatchdogName }

// Run implements framework.Runnable.
func (t *CommandTask) Run(ctx context.Context) error {
	wd := watchdog.InvalidHandle
	if t.Watchdog != nil {
		h, err := t.Watchdog.Register(t.WatchdogName, t.WatchdogTime)
		if err != nil {
			glog.Warningf("console: watchdog register %q: %v", t.WatchdogName, err)
		}
		wd = h
	}
	for {
		woken, err := t.Signal.WaitContext(ctx, t.WaitTimeout)
		if err != nil {
			return err
		}
		if woken {
			t.drain()
		}
		if t.Watchdog != nil {
			t.Watchdog.Feed(wd)
		}
	}
}

func (t *CommandTask) drain() {
	for {
		cmd, err := t.Commands.Receive(0)
		if err != nil {
			return
		}
		glog.V(2).Infof("console: command %q", cmd.String())
		t.Handler.HandleCommand(cmd.Normalized())
	}
}
