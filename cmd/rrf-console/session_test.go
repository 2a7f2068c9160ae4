// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameLineChecksumsMatchFirmware(t *testing.T) {
	// XOR of "N5 G1 X10" is 84; the firmware computes the same value
	// when it validates the line.
	assert.Equal(t, "N5 G1 X10*84", frameLine(5, "G1 X10"))
}

func TestChecksumIsBounded(t *testing.T) {
	cs := checksum("N123 M105")
	assert.GreaterOrEqual(t, cs, 0)
	assert.LessOrEqual(t, cs, 255)
}

func TestTakeLineSplitsPendingBytes(t *testing.T) {
	s := &session{pending: []byte("ok\r\nT:200.0\npartial")}

	line, ok := s.takeLine()
	assert.True(t, ok)
	assert.Equal(t, "ok", line)

	line, ok = s.takeLine()
	assert.True(t, ok)
	assert.Equal(t, "T:200.0", line)

	_, ok = s.takeLine()
	assert.False(t, ok)
	assert.Equal(t, "partial", string(s.pending))
}
