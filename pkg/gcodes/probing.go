// Homing and bed probing canned cycles
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

// Macro file names for homing.
const (
	homeAllFile = "homeall.g"
	homeXFile   = "homex.g"
	homeYFile   = "homey.g"
	homeZFile   = "homez.g"
)

// doCannedCycleMove executes one staged move: push, apply the
// moveToDo entries flagged active, queue, then pop when the move has
// run. Call until it returns true.
func (g *GCodes) doCannedCycleMove(checkEndstops bool) bool {
	if g.cannedMoveQueued {
		// The move is out; wait for it to finish and restore state.
		if !g.pop() {
			return false
		}
		g.cannedMoveQueued = false
		return true
	}
	if !g.push() {
		return false
	}
	for drive := 0; drive <= platform.Drives; drive++ {
		if g.activeDrive[drive] {
			g.moveBuffer[drive] = g.moveToDo[drive]
		}
	}
	g.checkEndstops = checkEndstops
	g.cannedMoveQueued = true
	g.moveAvailable = true
	return false
}

func (g *GCodes) clearCannedMove() {
	for i := range g.activeDrive {
		g.activeDrive[i] = false
	}
}

// Homing

// doHome runs the homing cycle for the axes flagged in the buffer.
// All three axes use homeall.g; otherwise each axis runs its own
// macro. Z is special: with an analog probe it can only be homed once
// X and Y are, because the probe needs to be over the bed.
func (g *GCodes) doHome(b *gcode.Buffer) result {
	if !g.homeX && !g.homeY && !g.homeZ {
		g.homeX = b.Seen('X')
		g.homeY = b.Seen('Y')
		g.homeZ = b.Seen('Z')
		if !g.homeX && !g.homeY && !g.homeZ {
			g.homeX, g.homeY, g.homeZ = true, true, true
		}
	}

	if g.homeX && g.homeY && g.homeZ {
		if g.doFileCannedCycles(homeAllFile) {
			g.homeX, g.homeY, g.homeZ = false, false, false
			g.axisIsHomed = [platform.Axes]bool{true, true, true}
			return ok()
		}
		return working
	}

	if g.homeX {
		if g.doFileCannedCycles(homeXFile) {
			g.homeX = false
			g.axisIsHomed[0] = true
			return g.homeResult()
		}
		return working
	}

	if g.homeY {
		if g.doFileCannedCycles(homeYFile) {
			g.homeY = false
			g.axisIsHomed[1] = true
			return g.homeResult()
		}
		return working
	}

	if g.homeZ {
		if g.mustHomeXYBeforeZ() && (!g.axisIsHomed[0] || !g.axisIsHomed[1]) {
			g.homeZ = false
			return fail("Must home X and Y before homing Z")
		}
		if g.doFileCannedCycles(homeZFile) {
			g.homeZ = false
			g.axisIsHomed[2] = true
			return g.homeResult()
		}
		return working
	}

	// Should never get here.
	g.checkEndstops = false
	g.moveAvailable = false
	return ok()
}

// homeResult continues with the next flagged axis or finishes.
func (g *GCodes) homeResult() result {
	if g.homeX || g.homeY || g.homeZ {
		return working
	}
	return ok()
}

// mustHomeXYBeforeZ: an analog probe homes Z against the bed surface,
// so X and Y have to be in a known place first. A plain switch does
// not care.
func (g *GCodes) mustHomeXYBeforeZ() bool {
	return g.platform.ProbeType() != nvram.ProbeSwitch
}

// Probing

// doSingleZProbeAtPoint runs the five-phase probe at the stored point
// probeCount: raise, traverse, descend until triggered, raise, record.
func (g *GCodes) doSingleZProbeAtPoint() bool {
	g.clearCannedMove()

	switch g.cannedCycleMoveCount {
	case 0: // Raise Z clear of the bed.
		g.moveToDo[2] = diveHeight
		g.activeDrive[2] = true
		g.moveToDo[platform.Drives] = g.platform.MaxFeedrate(2)
		g.activeDrive[platform.Drives] = true
		g.platform.SetZProbing(false)
		if g.doCannedCycleMove(false) {
			g.cannedCycleMoveCount++
		}
		return false

	case 1: // Traverse to the probe point.
		pt := g.probePoints[g.probeCount]
		g.moveToDo[0] = pt.X
		g.moveToDo[1] = pt.Y
		g.activeDrive[0] = true
		g.activeDrive[1] = true
		g.moveToDo[platform.Drives] = g.platform.MaxFeedrate(0)
		g.activeDrive[platform.Drives] = true
		g.platform.SetZProbing(false)
		if g.doCannedCycleMove(false) {
			g.cannedCycleMoveCount++
			g.platform.SetZProbing(true)
		}
		return false

	case 2: // Descend until the probe triggers.
		g.moveToDo[2] = -2.0 * g.platform.AxisMaximum(2)
		g.activeDrive[2] = true
		g.moveToDo[platform.Drives] = g.platform.HomeFeedRate(2)
		g.activeDrive[platform.Drives] = true
		if g.doCannedCycleMove(true) {
			g.cannedCycleMoveCount++
			g.platform.SetZProbing(false)
		}
		return false

	case 3: // Raise clear again.
		g.moveToDo[2] = diveHeight
		g.activeDrive[2] = true
		g.moveToDo[platform.Drives] = g.platform.MaxFeedrate(2)
		g.activeDrive[platform.Drives] = true
		if g.doCannedCycleMove(false) {
			g.cannedCycleMoveCount++
		}
		return false

	default: // Record where the probe fired.
		g.cannedCycleMoveCount = 0
		g.probePoints[g.probeCount].Z = g.move.LastProbedZ()
		g.probePoints[g.probeCount].ZSet = true
		return true
	}
}

// doSingleZProbe descends in place until the probe or switch triggers.
// Used by G30 without a point number.
func (g *GCodes) doSingleZProbe() bool {
	g.clearCannedMove()

	switch g.cannedCycleMoveCount {
	case 0:
		g.platform.SetZProbing(true)
		g.cannedCycleMoveCount++
		return false

	case 1:
		g.moveToDo[2] = -1.1 * (g.platform.AxisMaximum(2) - g.platform.AxisMinimum(2))
		g.activeDrive[2] = true
		g.moveToDo[platform.Drives] = g.platform.HomeFeedRate(2)
		g.activeDrive[platform.Drives] = true
		if g.doCannedCycleMove(true) {
			g.cannedCycleMoveCount++
			g.probeCount = 0
			g.platform.SetZProbing(false)
		}
		return false

	default:
		g.cannedCycleMoveCount = 0
		return true
	}
}

// setSingleZProbeAtAPosition handles G30: record the point's X/Y (from
// the words or the current position), then either take the Z from the
// word or probe for it. S fits the bed plane afterwards.
func (g *GCodes) setSingleZProbeAtAPosition(b *gcode.Buffer) result {
	if !g.allMovesFinishedAndLoaded() {
		return working
	}

	if !b.Seen('P') {
		if g.doSingleZProbe() {
			return ok()
		}
		return working
	}

	point := int(b.GetIValue())
	if point < 0 || point >= MaxProbePoints {
		return fail("probe point %d out of range", point)
	}
	g.probeCount = point

	pt := &g.probePoints[point]
	if b.Seen('X') {
		pt.X = b.GetFValue()
	} else {
		pt.X = g.moveBuffer[0]
	}
	if b.Seen('Y') {
		pt.Y = b.GetFValue()
	} else {
		pt.Y = g.moveBuffer[1]
	}
	pt.XYSet = true

	z := sillyZ
	if b.Seen('Z') {
		z = b.GetFValue()
	}

	if z > sillyZ {
		pt.Z = z
		pt.ZSet = true
		g.platform.SetZProbing(false)
		g.probeCount = 0
		if b.Seen('S') {
			g.zProbesSet = true
			g.move.SetProbedBedEquation(g.setPoints())
		}
		return ok()
	}

	if g.doSingleZProbeAtPoint() {
		g.probeCount = 0
		g.platform.SetZProbing(false)
		if b.Seen('S') {
			g.zProbesSet = true
			g.move.SetProbedBedEquation(g.setPoints())
		}
		return ok()
	}
	return working
}

// doMultipleZProbe handles G32: probe every stored point, then fit the
// bed plane.
func (g *GCodes) doMultipleZProbe() result {
	n := g.numProbePoints()
	if n < 3 {
		return fail("Bed probing: there needs to be 3 or more points set.")
	}
	if !g.axisIsHomed[0] || !g.axisIsHomed[1] {
		return fail("Must home X and Y before bed probing")
	}

	if g.doSingleZProbeAtPoint() {
		g.probeCount++
	}
	if g.probeCount >= n {
		g.probeCount = 0
		g.zProbesSet = true
		g.platform.SetZProbing(false)
		g.move.SetProbedBedEquation(g.setPoints())
		return ok()
	}
	return working
}

// numProbePoints counts the leading run of points with X/Y set.
func (g *GCodes) numProbePoints() int {
	for i := range g.probePoints {
		if !g.probePoints[i].XYSet {
			return i
		}
	}
	return len(g.probePoints)
}

func (g *GCodes) setPoints() []ProbePoint {
	return g.probePoints[:g.numProbePoints()]
}
