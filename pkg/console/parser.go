package console

import "strings"

// MaxCommandLength is the capacity of a Command.
const MaxCommandLength = 32

// Control bytes recognized by the Parser.
const (
	CR        byte = '\r'
	LF        byte = '\n'
	Backspace byte = 0x08
	Delete    byte = 0x7f
)

// Command is a complete input line, queued by value.
type Command struct {
	n   uint8
	buf [MaxCommandLength]byte
}

// NewCommand builds a Command from s, truncated to MaxCommandLength.
func NewCommand(s string) (c Command) {
	c.n = uint8(copy(c.buf[:], s))
	return
}

// Len returns the command length in bytes.
func (c Command) Len() int { return int(c.n) }

// String returns the raw command text.
func (c Command) String() string { return string(c.buf[:c.n]) }

// Normalized returns the command trimmed and lowercased.
func (c Command) Normalized() string {
	return strings.ToLower(strings.TrimSpace(c.String()))
}

// Action is what the caller must do after a parsed byte.
type Action int

const (
	// ActionNone means nothing to do.
	ActionNone Action = iota
	// ActionEcho means echo ParseResult.Echo.
	ActionEcho
	// ActionErase means erase the last echoed character.
	ActionErase
	// ActionCommand means ParseResult.Command is complete.
	ActionCommand
	// ActionOverflow means the line was too long and has been discarded.
	// ParseResult.Echo is still echoed.
	ActionOverflow
)

// ParseResult is the outcome of one parsing step.
type ParseResult struct {
	Action  Action
	Echo    byte
	Command Command
}

// Parser assembles input bytes into commands.
type Parser struct {
	limit int
	cmd   Command
}

// NewParser creates a Parser accepting lines of at most limit bytes.
// limit is clamped to [1, MaxCommandLength].
func NewParser(limit int) *Parser {
	if limit <= 0 || limit > MaxCommandLength {
		limit = MaxCommandLength
	}
	return &Parser{limit: limit}
}

// Buffered returns the bytes assembled so far.
func (p *Parser) Buffered() string { return p.cmd.String() }

// Reset discards the partial line.
func (p *Parser) Reset() {
	p.cmd = Command{}
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch b {
	case CR, LF:
		if p.cmd.n > 0 {
			pr.Action, pr.Command = ActionCommand, p.cmd
			p.Reset()
		}
	case Backspace, Delete:
		if p.cmd.n > 0 {
			p.cmd.n--
			p.cmd.buf[p.cmd.n] = 0
			pr.Action = ActionErase
		}
	default:
		pr.Echo = b
		if int(p.cmd.n) >= p.limit {
			p.Reset()
			pr.Action = ActionOverflow
			return
		}
		p.cmd.buf[p.cmd.n] = b
		p.cmd.n++
		pr.Action = ActionEcho
	}
	return
}
