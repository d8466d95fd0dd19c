package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/broadcast"
	fx "github.com/robotalks/taskcore/pkg/framework"
	"github.com/robotalks/taskcore/pkg/system"
	"github.com/robotalks/taskcore/pkg/transport/stream"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

// Shell provides ishell backed interactive shell driving an in-process
// System.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	System *system.System
}

const (
	shellKey = "$shell"
	prompt   = "taskcore > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&SendCmd,
		&TypeCmd,
		&WatchdogCmd,
		&StatsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(sys *system.System) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		System: sys,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Print prints v as JSON when OutputJSON is set, otherwise text.
func (s *Shell) Print(c *ishell.Context, v interface{}, text string) {
	if !s.OutputJSON {
		c.Print(text)
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// Inject passes bytes to the console as if received by the UART.
func (s *Shell) Inject(data []byte) error {
	if n := s.System.IRQ().WriteFrom(data); n < len(data) {
		return fmt.Errorf("input overflow: %d of %d bytes dropped", len(data)-n, len(data))
	}
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Fatalln("command expected")
}

// FormatStatus renders a watchdog entry for display.
func FormatStatus(st watchdog.Status) string {
	state := "ok"
	if st.Alerted {
		state = "ALERTED"
	}
	return fmt.Sprintf("%2d %-12s %-7s last feed %6d ms ago, timeout %d ms, alerts %d",
		st.Handle, st.Name, state, st.Elapsed.Milliseconds(), st.Timeout.Milliseconds(), st.Alerts)
}

var (
	// SendCmd sends a command line followed by CR.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "TEXT...",
		Func: func(c *ishell.Context) {
			line := strings.Join(c.Args, " ") + "\r"
			if err := ShellFrom(c).Inject([]byte(line)); err != nil {
				c.Err(err)
			}
		},
	}

	// TypeCmd sends raw text without a terminator. \b, \r and \n escapes
	// are recognized.
	TypeCmd = ishell.Cmd{
		Name: "type",
		Help: "TEXT",
		Func: func(c *ishell.Context) {
			text := strings.NewReplacer(`\b`, "\b", `\r`, "\r", `\n`, "\n").
				Replace(strings.Join(c.Args, " "))
			if err := ShellFrom(c).Inject([]byte(text)); err != nil {
				c.Err(err)
			}
		},
	}

	// WatchdogCmd lists watchdog entries.
	WatchdogCmd = ishell.Cmd{
		Name:    "watchdog",
		Aliases: []string{"wd"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			entries := s.System.Registry.Entries()
			var text strings.Builder
			for _, st := range entries {
				text.WriteString(FormatStatus(st))
				text.WriteString("\n")
			}
			s.Print(c, entries, text.String())
		},
	}

	// StatsCmd shows output and input counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			st := s.System.Output.Stats()
			info := struct {
				Output       broadcast.Stats `json:"output"`
				Pending      int             `json:"pending"`
				Commands     int             `json:"commands"`
				InputDropped uint64          `json:"input_dropped"`
			}{st, s.System.Output.Pending(), s.System.Commands.Len(), s.System.IRQ().Dropped()}
			s.Print(c, info, fmt.Sprintf(
				"published %d, rejected %d, transmitted %d, transmit errors %d, callers %d\n"+
					"pending %d, queued commands %d, input dropped %d\n",
				st.Published, st.Rejected, st.Transmitted, st.TransmitErrors, st.Callers,
				info.Pending, info.Commands, info.InputDropped))
		},
	}
)

// Main is a helper to provide a single call in main. The system writes its
// output to stdout.
func Main() {
	flag.Parse()
	defer glog.Flush()

	conf := system.NewConfig()
	sys := conf.MustNew(system.Deps{Transmitter: stream.New(os.Stdout)})
	ctx, cancel := context.WithCancel(context.Background())
	runner := fx.NewRunnerWith(ctx).Add(sys)

	readyCtx, readyCancel := context.WithTimeout(ctx, 5*time.Second)
	err := sys.WaitReady(readyCtx)
	readyCancel()
	if err != nil {
		glog.Fatalf("console not ready: %v", err)
	}

	New(sys).Run(flag.Args()...)
	if len(flag.Args()) > 0 {
		waitIdle(sys, time.Second)
	}
	cancel()
	if err := runner.Wait(); err != nil {
		glog.Errorf("system stopped: %v", err)
	}
}

// waitIdle waits until injected input has been handled and printed. The
// system must stay idle for two consecutive checks since a byte taken off
// the input is not yet visible as a command.
func waitIdle(sys *system.System, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	idle := 0
	for time.Now().Before(deadline) && idle < 2 {
		time.Sleep(20 * time.Millisecond)
		if sys.Idle() {
			idle++
		} else {
			idle = 0
		}
	}
}
