// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"strconv"
	"strings"
)

// The accessors below answer letter-keyed queries against the
// completed line. Seen positions an internal cursor; the Get* calls
// read the value following the most recently seen letter, so the usual
// pattern is:
//
//	if gb.Seen('S') {
//		v := gb.GetFValue()
//	}

// Seen reports whether parameter letter c occurs in the line and
// positions the read cursor on it.
func (b *Buffer) Seen(c byte) bool {
	upper := c &^ 0x20
	for i := 0; i < len(b.line); i++ {
		if b.line[i]&^0x20 == upper {
			b.readPointer = i
			return true
		}
	}
	b.readPointer = -1
	return false
}

// GetFValue returns the float following the last-seen letter.
func (b *Buffer) GetFValue() float64 {
	tok := b.numberToken()
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		b.logger.Warn("%s: GetFValue: no number after %q", strings.TrimSpace(b.identity), b.line)
		return 0
	}
	return v
}

// GetIValue returns the integer following the last-seen letter.
func (b *Buffer) GetIValue() int {
	return int(b.GetLValue())
}

// GetLValue returns the (possibly wide) integer following the
// last-seen letter.
func (b *Buffer) GetLValue() int64 {
	tok := b.numberToken()
	// Allow a float-looking value where an int is expected; truncate.
	if i := strings.IndexByte(tok, '.'); i >= 0 {
		tok = tok[:i]
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		b.logger.Warn("%s: GetLValue: no number after %q", strings.TrimSpace(b.identity), b.line)
		return 0
	}
	return v
}

// GetFloatArray returns the ':'-separated float list following the
// last-seen letter. A single value is replicated to length n, so
// "M906 X900" and "M906 X900:900:900" behave alike on a 3-drive axis
// group.
func (b *Buffer) GetFloatArray(n int) []float64 {
	toks := b.listTokens()
	out := make([]float64, 0, n)
	for _, tok := range toks {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	if len(out) == 1 && n > 1 {
		for len(out) < n {
			out = append(out, out[0])
		}
	}
	return out
}

// GetLongArray is GetFloatArray for integers.
func (b *Buffer) GetLongArray(n int) []int64 {
	toks := b.listTokens()
	out := make([]int64, 0, n)
	for _, tok := range toks {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	if len(out) == 1 && n > 1 {
		for len(out) < n {
			out = append(out, out[0])
		}
	}
	return out
}

// GetString returns everything after the last-seen letter.
func (b *Buffer) GetString() string {
	if b.readPointer < 0 || b.readPointer+1 > len(b.line) {
		return ""
	}
	return strings.TrimSpace(b.line[b.readPointer+1:])
}

// GetUnprecedentedString returns the remainder of the line after the
// command word itself; file names in M23/M30 etc. are not introduced
// by a parameter letter.
func (b *Buffer) GetUnprecedentedString() string {
	i := strings.IndexByte(b.line, ' ')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(b.line[i+1:])
}

// numberToken returns the numeric characters following the cursor.
func (b *Buffer) numberToken() string {
	if b.readPointer < 0 {
		return ""
	}
	i := b.readPointer + 1
	j := i
	for j < len(b.line) {
		c := b.line[j]
		if c == '+' || c == '-' {
			if j != i {
				break
			}
		} else if c != '.' && (c < '0' || c > '9') {
			break
		}
		j++
	}
	return b.line[i:j]
}

// listTokens returns the ':'-separated numeric tokens following the
// cursor.
func (b *Buffer) listTokens() []string {
	if b.readPointer < 0 {
		return nil
	}
	i := b.readPointer + 1
	j := i
	for j < len(b.line) {
		c := b.line[j]
		if c != ':' && c != '+' && c != '-' && c != '.' && (c < '0' || c > '9') {
			break
		}
		j++
	}
	if j == i {
		return nil
	}
	return strings.Split(b.line[i:j], ":")
}
