// Package menu implements the two-level LED pattern menu driven by console
// commands.
package menu

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/console"
)

// Texts.
const (
	Welcome = "\r\n\r\n" +
		"****************************************\r\n" +
		"*                                      *\r\n" +
		"*   LED Pattern Control Application   *\r\n" +
		"*        FreeRTOS UART Interface       *\r\n" +
		"*                                      *\r\n" +
		"****************************************\r\n"

	MainMenu = "\r\n========================================\r\n" +
		"              MAIN MENU\r\n" +
		"========================================\r\n" +
		"  1 - LED Patterns\r\n" +
		"  2 - Exit Application\r\n" +
		"========================================\r\n" +
		"Enter selection: "

	PatternsMenu = "\r\n========================================\r\n" +
		"        LED Pattern Selection\r\n" +
		"========================================\r\n" +
		"  0 - Return to main menu\r\n" +
		"  1 - All LEDs ON\r\n" +
		"  2 - Different Frequency Blinking\r\n" +
		"  3 - Same Frequency Blinking\r\n" +
		"  4 - All LEDs OFF\r\n" +
		"========================================\r\n" +
		"Enter selection: "

	InvalidOption = "\r\nInvalid option. Please try again.\r\n"
	ExitMessage   = "\r\nApplication exited. All LEDs turned OFF.\r\n"
	AllOffMessage = "\r\nAll LEDs turned OFF\r\n"
)

// State is the menu level.
type State int32

// Menu states.
const (
	StateMain State = iota
	StatePatterns
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateMain:
		return "MAIN"
	case StatePatterns:
		return "LED_PATTERNS"
	}
	return "UNKNOWN"
}

// Menu is a console.Handler. HandleCommand must be called from a single task.
type Menu struct {
	out   console.Publisher
	leds  PatternSetter
	state atomic.Int32
}

// New creates a Menu in the main state.
func New(out console.Publisher, leds PatternSetter) *Menu {
	if leds == nil {
		leds = &PatternLog{}
	}
	return &Menu{out: out, leds: leds}
}

// State returns the current menu level.
func (m *Menu) State() State {
	return State(m.state.Load())
}

// Banner publishes the welcome text and the main menu. It fits
// console.RXTask.Banner.
func (m *Menu) Banner(out console.Publisher) {
	m.print(out, Welcome)
	m.print(out, MainMenu)
}

// HandleCommand implements console.Handler.
func (m *Menu) HandleCommand(cmd string) {
	switch m.State() {
	case StateMain:
		m.mainCommand(cmd)
	case StatePatterns:
		m.patternsCommand(cmd)
	default:
		m.state.Store(int32(StateMain))
		m.print(m.out, MainMenu)
	}
}

func (m *Menu) mainCommand(cmd string) {
	switch cmd {
	case "1":
		m.state.Store(int32(StatePatterns))
		m.print(m.out, PatternsMenu)
	case "2":
		m.leds.SetPattern(PatternNone)
		m.print(m.out, ExitMessage)
		m.print(m.out, MainMenu)
	default:
		m.print(m.out, InvalidOption)
		m.print(m.out, MainMenu)
	}
}

func (m *Menu) patternsCommand(cmd string) {
	switch cmd {
	case "0":
		m.state.Store(int32(StateMain))
		m.print(m.out, MainMenu)
		return
	case "1", "2", "3":
		p := Pattern(cmd[0] - '0')
		m.leds.SetPattern(p)
		m.print(m.out, "\r\nNow playing LED "+p.String()+"\r\n")
	case "4":
		m.leds.SetPattern(PatternNone)
		m.print(m.out, AllOffMessage)
	default:
		m.print(m.out, InvalidOption)
	}
	m.print(m.out, PatternsMenu)
}

func (m *Menu) print(out console.Publisher, text string) {
	if err := out.Publish([]byte(text)); err != nil {
		glog.Warningf("menu: publish: %v", err)
	}
}
