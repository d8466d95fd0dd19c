package menu

import (
	"strconv"
	"sync/atomic"

	"github.com/golang/glog"
)

// Pattern selects an LED effect.
type Pattern int32

// Patterns.
const (
	PatternNone Pattern = iota
	Pattern1
	Pattern2
	Pattern3
)

// String implements fmt.Stringer.
func (p Pattern) String() string {
	if p == PatternNone {
		return "OFF"
	}
	return "Pattern " + strconv.Itoa(int(p))
}

// PatternSetter drives the LEDs.
type PatternSetter interface {
	SetPattern(Pattern)
}

// PatternLog records and logs the selected pattern where no LEDs exist.
type PatternLog struct {
	current atomic.Int32
}

// SetPattern implements PatternSetter.
func (l *PatternLog) SetPattern(p Pattern) {
	l.current.Store(int32(p))
	glog.Infof("led pattern: %s", p)
}

// Pattern returns the last selected pattern.
func (l *PatternLog) Pattern() Pattern {
	return Pattern(l.current.Load())
}
