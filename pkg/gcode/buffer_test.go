// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, b *Buffer, line string) {
	t.Helper()
	require.True(t, b.PutLine(line), "line %q should complete the buffer", line)
}

func TestAssembleSimpleLine(t *testing.T) {
	b := NewBuffer("serial: ")
	for _, c := range []byte("G1 X10") {
		assert.False(t, b.Put(c))
	}
	assert.Equal(t, Assembling, b.State())
	assert.True(t, b.Put('\n'))
	assert.Equal(t, Complete, b.State())
	assert.Equal(t, "G1 X10", b.Line())
}

func TestCommentsStripped(t *testing.T) {
	b := NewBuffer("file: ")
	put(t, b, "G28 ; home everything")
	assert.Equal(t, "G28", b.Line())
}

func TestChecksumAcceptedAndPrefixStripped(t *testing.T) {
	b := NewBuffer("serial: ")
	put(t, b, "N5 G1 X10 Y20 F1500*77")
	assert.Equal(t, "G1 X10 Y20 F1500", b.Line())
	assert.Equal(t, 5, b.LineNumber())
}

func TestChecksumMismatchBecomesResend(t *testing.T) {
	b := NewBuffer("serial: ")
	// True checksum is 77
	put(t, b, "N5 G1 X10 Y20 F1500*42")
	assert.Equal(t, "M998 P5", b.Line(), "mismatch must yield a resend request and nothing else")
}

func TestOverflowDiscardsLine(t *testing.T) {
	b := NewBuffer("web: ")
	long := make([]byte, MaxLineLength+20)
	for i := range long {
		long[i] = 'X'
	}
	for _, c := range long {
		assert.False(t, b.Put(c))
	}
	assert.False(t, b.Put('\n'), "overflowed line must be discarded, not dispatched")
	assert.Equal(t, Idle, b.State())

	// The buffer recovers for the next line
	put(t, b, "G4 P1")
	assert.Equal(t, "G4 P1", b.Line())
}

func TestSeenAndValues(t *testing.T) {
	b := NewBuffer("serial: ")
	put(t, b, "G1 X10.5 Y-3 E2.25 F1500")

	require.True(t, b.Seen('X'))
	assert.Equal(t, 10.5, b.GetFValue())
	require.True(t, b.Seen('Y'))
	assert.Equal(t, -3.0, b.GetFValue())
	require.True(t, b.Seen('F'))
	assert.Equal(t, 1500, b.GetIValue())
	assert.False(t, b.Seen('Z'))
}

func TestSeenIsCaseInsensitive(t *testing.T) {
	b := NewBuffer("serial: ")
	put(t, b, "m106 s255")
	require.True(t, b.Seen('S'))
	assert.Equal(t, 255, b.GetIValue())
}

func TestFloatArrayReplication(t *testing.T) {
	b := NewBuffer("serial: ")
	put(t, b, "M906 X900:800:700 Y650")

	require.True(t, b.Seen('X'))
	assert.Equal(t, []float64{900, 800, 700}, b.GetFloatArray(3))
	require.True(t, b.Seen('Y'))
	assert.Equal(t, []float64{650, 650, 650}, b.GetFloatArray(3), "a single value is replicated")
}

func TestUnprecedentedString(t *testing.T) {
	b := NewBuffer("web: ")
	put(t, b, "M23 gcodes/part one.g")
	assert.Equal(t, "gcodes/part one.g", b.GetUnprecedentedString())
}

func TestGetString(t *testing.T) {
	b := NewBuffer("serial: ")
	put(t, b, "M550 PMyPrinter")
	require.True(t, b.Seen('P'))
	assert.Equal(t, "MyPrinter", b.GetString())
}

func TestCommandParsing(t *testing.T) {
	cases := []struct {
		line   string
		letter byte
		code   int
		ok     bool
	}{
		{"G28 X Y", 'G', 28, true},
		{"M998 P3", 'M', 998, true},
		{"T1", 'T', 1, true},
		{"T", 'T', 0, true},
		{"g1 X0", 'G', 1, true},
		{"", 0, 0, false},
		{"?", 0, 0, false},
	}
	for _, c := range cases {
		b := NewBuffer("test: ")
		if c.line != "" {
			put(t, b, c.line)
		} else {
			b.PutLine("\n")
		}
		letter, code, ok := b.Command()
		assert.Equal(t, c.ok, ok, "line %q", c.line)
		if c.ok {
			assert.Equal(t, c.letter, letter, "line %q", c.line)
			assert.Equal(t, c.code, code, "line %q", c.line)
		}
	}
}

func TestLifeCycle(t *testing.T) {
	b := NewBuffer("file: ")
	put(t, b, "G4 S2")
	b.SetExecuting()
	assert.True(t, b.Active())

	b.SetFinished(false)
	assert.True(t, b.Active(), "not-done keeps the command executing")

	b.SetFinished(true)
	assert.Equal(t, Idle, b.State())
	assert.Equal(t, "", b.Line())
}
