// G-code line assembly and field access
//
// A Buffer collects one line of G-code a character at a time, handles
// the Nnnn/*CS line-number and checksum protocol, and then answers
// letter-keyed queries (Seen/GetFValue/...) against the completed
// line. Each input source owns one Buffer; the identity tag names the
// source in diagnostics.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
)

// MaxLineLength is the longest accepted line, terminator excluded.
// Longer lines are discarded with a diagnostic.
const MaxLineLength = 100

// State tracks a Buffer through its life cycle.
type State int

const (
	// Idle: empty, ready for the first character.
	Idle State = iota
	// Assembling: a partial line is in the buffer.
	Assembling
	// Complete: a full line is ready for dispatch.
	Complete
	// Executing: dispatched, the handler has not finished yet.
	Executing
)

// Buffer assembles and holds one G-code line for a single source.
type Buffer struct {
	logger   *log.Logger
	identity string

	raw   []byte
	line  string
	state State

	readPointer int
	inComment   bool
	overflow    bool

	// Writing a file: raw lines are diverted, but M-codes still need
	// to be visible so M29 can close the capture (tracked by gcodes).
	lineNumber int
}

// NewBuffer creates a buffer for the named source.
func NewBuffer(identity string) *Buffer {
	return &Buffer{
		logger:   log.GetLogger("gcode"),
		identity: identity,
		raw:      make([]byte, 0, MaxLineLength),
	}
}

// Identity returns the source tag, e.g. "web", "serial", "file".
func (b *Buffer) Identity() string {
	return b.identity
}

// State returns the buffer's life-cycle state.
func (b *Buffer) State() State {
	return b.state
}

// Active reports whether a dispatched command is still running.
func (b *Buffer) Active() bool {
	return b.state == Executing
}

// Ready reports whether a completed line awaits dispatch.
func (b *Buffer) Ready() bool {
	return b.state == Complete
}

// Idle reports whether the buffer can accept a fresh line.
func (b *Buffer) Idle() bool {
	return b.state == Idle || b.state == Assembling
}

// SetExecuting marks the completed line as dispatched.
func (b *Buffer) SetExecuting() {
	b.state = Executing
}

// SetFinished releases the buffer when its handler reports done, or
// keeps it executing so the handler is retried next spin.
func (b *Buffer) SetFinished(done bool) {
	if done {
		b.Init()
	} else {
		b.state = Executing
	}
}

// Init empties the buffer.
func (b *Buffer) Init() {
	b.raw = b.raw[:0]
	b.line = ""
	b.state = Idle
	b.readPointer = -1
	b.inComment = false
	b.overflow = false
}

// Command returns the command letter and integer code of the
// completed line, e.g. ('G', 28) for "G28 X". ok is false for an
// empty line or one that does not start with a letter/number pair.
func (b *Buffer) Command() (letter byte, code int, ok bool) {
	if len(b.line) == 0 {
		return 0, 0, false
	}
	letter = b.line[0] &^ 0x20
	if letter < 'A' || letter > 'Z' {
		return 0, 0, false
	}
	i := 1
	for i < len(b.line) && ((b.line[i] >= '0' && b.line[i] <= '9') || (i == 1 && (b.line[i] == '-' || b.line[i] == '+'))) {
		i++
	}
	if i == 1 {
		// A bare T selects tool 0 in some slicers' output; treat a
		// letter with no number as code 0 only for T.
		if letter == 'T' {
			return letter, 0, true
		}
		return 0, 0, false
	}
	code, err := strconv.Atoi(b.line[1:i])
	if err != nil {
		return 0, 0, false
	}
	return letter, code, true
}

// Line returns the completed line.
func (b *Buffer) Line() string {
	return b.line
}

// LineNumber returns the N value of the completed line, or 0.
func (b *Buffer) LineNumber() int {
	return b.lineNumber
}

// Put feeds one character. It reports true when a complete line is
// ready; the caller must not feed more characters until the line has
// been taken (dispatch resets the buffer via SetFinished).
func (b *Buffer) Put(c byte) bool {
	if c == '\r' {
		return false
	}
	if c == '\n' {
		return b.finishLine()
	}
	if c == ';' {
		b.inComment = true
	}
	if b.inComment {
		return false
	}
	if len(b.raw) >= MaxLineLength {
		if !b.overflow {
			b.logger.Warn("%s: G-code buffer length overflow", strings.TrimSpace(b.identity))
			b.overflow = true
		}
		return false
	}
	b.raw = append(b.raw, c)
	b.state = Assembling
	return false
}

// PutLine feeds a whole line including the terminator.
func (b *Buffer) PutLine(s string) bool {
	done := false
	for i := 0; i < len(s); i++ {
		done = b.Put(s[i])
	}
	if !done && len(s) > 0 && s[len(s)-1] != '\n' {
		done = b.Put('\n')
	}
	return done
}

func (b *Buffer) finishLine() bool {
	overflowed := b.overflow
	line := strings.TrimSpace(string(b.raw))
	b.raw = b.raw[:0]
	b.inComment = false
	b.overflow = false
	b.lineNumber = 0

	if overflowed || line == "" {
		if line == "" && !overflowed {
			// An empty line still yields a Complete buffer so the
			// dispatcher can answer "ok" to bare newlines.
			b.line = ""
			b.state = Complete
			return true
		}
		b.state = Idle
		return false
	}

	line, ok := b.applyChecksum(line)
	if !ok {
		// Replaced with a resend request; dispatch it like any line.
		b.line = line
		b.state = Complete
		return true
	}

	b.line = line
	b.state = Complete
	return true
}

// applyChecksum validates a trailing *CS against the XOR of the bytes
// before the '*'. On mismatch the line is replaced by an M998 resend
// request carrying the received line number. On success the Nnnn
// prefix and the checksum tail are stripped.
func (b *Buffer) applyChecksum(line string) (string, bool) {
	star := strings.IndexByte(line, '*')
	n := b.parseLineNumber(line)
	b.lineNumber = n

	if star < 0 {
		return line, true
	}

	var cs byte
	for i := 0; i < star; i++ {
		cs ^= line[i]
	}
	want, err := strconv.Atoi(strings.TrimSpace(line[star+1:]))
	if err != nil || int(cs) != want {
		b.logger.Debug("%s: checksum mismatch on line %d", strings.TrimSpace(b.identity), n)
		return fmt.Sprintf("M998 P%d", n), false
	}

	line = line[:star]
	// Strip the line number now the checksum has been verified.
	if len(line) > 0 && (line[0] == 'N' || line[0] == 'n') {
		i := 1
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		line = strings.TrimLeft(line[i:], " ")
	}
	return strings.TrimSpace(line), true
}

func (b *Buffer) parseLineNumber(line string) int {
	if len(line) == 0 || (line[0] != 'N' && line[0] != 'n') {
		return 0
	}
	i := 1
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	n, _ := strconv.Atoi(line[1:i])
	return n
}
