// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import "github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"

// push saves the execution context on entry to a macro or canned
// cycle: the relative/absolute modes, the feedrate, and the file being
// printed. It waits for the planner to drain first so the captured
// state is the state the moves actually ran under. Call until it
// returns true. Overflow is reported and treated as done so the
// offending command does not wedge the dispatcher.
func (g *GCodes) push() bool {
	if g.stackPointer >= StackSize {
		g.platform.Message(platform.GenericMessage, "Error: push(): stack overflow!\n")
		return true
	}
	if !g.allMovesFinishedAndLoaded() {
		return false
	}
	frame := &g.stack[g.stackPointer]
	frame.drivesRelative = g.drivesRelative
	frame.axesRelative = g.axesRelative
	frame.feedrate = g.moveBuffer[platform.Drives]
	frame.file = g.fileBeingPrinted
	g.stackPointer++
	g.platform.PushMessageIndent()
	return true
}

// pop restores the context saved by the matching push and queues a
// zero-displacement move at the restored feedrate so the planner is
// re-seated with it. Call until it returns true.
func (g *GCodes) pop() bool {
	if g.stackPointer <= 0 {
		g.platform.Message(platform.GenericMessage, "Error: pop(): stack underflow!\n")
		return true
	}
	if !g.allMovesFinishedAndLoaded() {
		return false
	}
	g.stackPointer--
	frame := &g.stack[g.stackPointer]
	g.drivesRelative = frame.drivesRelative
	g.axesRelative = frame.axesRelative
	g.fileBeingPrinted = frame.file
	frame.file = nil
	g.platform.PopMessageIndent()

	// The move buffer already holds the live position; restoring the
	// feedrate and queueing it makes the null move that re-seats the
	// planner.
	g.moveBuffer[platform.Drives] = frame.feedrate
	g.checkEndstops = false
	g.moveAvailable = true
	return true
}

// StackDepth reports the current nesting level.
func (g *GCodes) StackDepth() int {
	return g.stackPointer
}
