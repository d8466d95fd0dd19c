// Package probe adds shell commands registering synthetic watchdog entries,
// used to exercise alerting by hand.
package probe

import (
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/taskcore/pkg/cli/sh"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

var (
	// RegisterCmd registers a probe entry which is only fed by FeedCmd.
	RegisterCmd = ishell.Cmd{
		Name:    "probe.register",
		Aliases: []string{"pr"},
		Help:    "NAME TIMEOUT(ms)",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("NAME and TIMEOUT required"))
				return
			}
			timeout, err := strconv.Atoi(c.Args[1])
			if err != nil {
				c.Err(fmt.Errorf("Invalid TIMEOUT: %v", err))
				return
			}
			h, err := sh.ShellFrom(c).System.Registry.Register(c.Args[0], time.Duration(timeout)*time.Millisecond)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("registered %s (ID=%d)\n", c.Args[0], h)
		},
	}

	// FeedCmd feeds an entry by ID.
	FeedCmd = ishell.Cmd{
		Name:    "probe.feed",
		Aliases: []string{"pf"},
		Help:    "ID",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("ID required"))
				return
			}
			id, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid ID: %v", err))
				return
			}
			reg := sh.ShellFrom(c).System.Registry
			if id < 0 || id >= reg.Len() {
				c.Err(fmt.Errorf("unknown ID %d", id))
				return
			}
			reg.Feed(watchdog.Handle(id))
		},
	}

	// MenuCmd shows the menu state.
	MenuCmd = ishell.Cmd{
		Name: "menu",
		Help: "",
		Func: func(c *ishell.Context) {
			if m := sh.ShellFrom(c).System.Menu; m != nil {
				c.Println(m.State().String())
				return
			}
			c.Err(fmt.Errorf("no menu"))
		},
	}
)

func init() {
	sh.AddCmds(
		&RegisterCmd,
		&FeedCmd,
		&MenuCmd,
	)
}
