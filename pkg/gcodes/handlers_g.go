// G-code handlers
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"fmt"
	"strconv"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

var axisLetters = [platform.Axes]byte{'X', 'Y', 'Z'}

// loadMoveBufferFromGCode folds the move words into the move buffer.
// Axis words respect G90/G91 and the unit scale; when the axis is
// homed and limits apply, the target is clipped to the travel range.
// Extruder words respect M82/M83 and the extrusion factor.
func (g *GCodes) loadMoveBufferFromGCode(b *gcode.Buffer, doingG92, applyLimits bool) {
	for axis := 0; axis < platform.Axes; axis++ {
		if !b.Seen(axisLetters[axis]) {
			continue
		}
		v := b.GetFValue() * g.distanceScale
		if g.axesRelative && !doingG92 {
			g.moveBuffer[axis] += v
		} else {
			g.moveBuffer[axis] = v
		}
		if applyLimits && g.axisIsHomed[axis] && !doingG92 {
			if g.moveBuffer[axis] < g.platform.AxisMinimum(axis) {
				g.moveBuffer[axis] = g.platform.AxisMinimum(axis)
			}
			if g.moveBuffer[axis] > g.platform.AxisMaximum(axis) {
				g.moveBuffer[axis] = g.platform.AxisMaximum(axis)
			}
		}
		if doingG92 {
			g.axisIsHomed[axis] = true
		}
	}

	for drive := platform.Axes; drive < platform.Drives; drive++ {
		if !b.Seen('E') || drive != platform.Axes+g.selectedExtruder() {
			continue
		}
		v := b.GetFValue() * g.distanceScale
		if doingG92 {
			g.moveBuffer[drive] = v
			g.lastExtruderPos[drive-platform.Axes] = v
			continue
		}
		if g.drivesRelative {
			g.moveBuffer[drive] = v * g.extrusionFactor
		} else {
			g.moveBuffer[drive] = (v - g.lastExtruderPos[drive-platform.Axes]) * g.extrusionFactor
			g.lastExtruderPos[drive-platform.Axes] = v
		}
	}

	if b.Seen('F') {
		g.moveBuffer[platform.Drives] = b.GetFValue() * g.distanceScale * g.speedFactor
	}
}

// selectedExtruder maps the current tool to its extruder index.
func (g *GCodes) selectedExtruder() int {
	if t := g.getTool(g.currentTool); t != nil && t.Drive >= platform.Axes {
		return t.Drive - platform.Axes
	}
	return 0
}

// doG1 queues a straight move. Not done while the single move slot is
// still occupied.
func (g *GCodes) doG1(b *gcode.Buffer) result {
	if g.moveAvailable {
		return working
	}
	g.loadMoveBufferFromGCode(b, false, !g.doingCannedCycleFile && g.limitAxes)
	g.checkEndstops = false
	g.moveAvailable = true
	return ok()
}

// doDwell pauses for P milliseconds or S seconds after the planner
// drains (G4).
func (g *GCodes) doDwell(b *gcode.Buffer) result {
	if !g.dwellWaiting {
		var ms uint64
		switch {
		case b.Seen('P'):
			ms = uint64(b.GetLValue())
		case b.Seen('S'):
			ms = uint64(b.GetFValue() * 1000.0)
		default:
			return ok()
		}
		if !g.move.AllMovesAreFinished() {
			return working
		}
		g.dwellEnd = g.platform.Time() + ms
		g.dwellWaiting = true
	}
	if g.platform.Time() < g.dwellEnd {
		return working
	}
	g.dwellWaiting = false
	return ok()
}

// doG10 offsets the axes: the machine moves by the given amounts and
// then declares itself back at the original coordinates.
func (g *GCodes) doG10(b *gcode.Buffer) result {
	if !g.offsetSet {
		if !g.allMovesFinishedAndLoaded() {
			return working
		}
		g.clearCannedMove()
		for drive := 0; drive <= platform.Drives; drive++ {
			g.offsetRecord[drive] = g.moveBuffer[drive]
			g.moveToDo[drive] = g.moveBuffer[drive]
		}
		for axis := 0; axis < platform.Axes; axis++ {
			if b.Seen(axisLetters[axis]) {
				g.moveToDo[axis] += b.GetFValue()
				g.activeDrive[axis] = true
			}
		}
		if b.Seen('F') {
			g.moveToDo[platform.Drives] = b.GetFValue()
			g.activeDrive[platform.Drives] = true
		}
		g.offsetSet = true
	}

	if g.doCannedCycleMove(false) {
		copy(g.moveBuffer[:], g.offsetRecord[:])
		g.move.SetPositions(g.offsetRecord[:platform.Drives])
		g.offsetSet = false
		return ok()
	}
	return working
}

func (g *GCodes) doG20(b *gcode.Buffer) result {
	g.distanceScale = 25.4
	return ok()
}

func (g *GCodes) doG21(b *gcode.Buffer) result {
	g.distanceScale = 1.0
	return ok()
}

func (g *GCodes) doSingleProbe(b *gcode.Buffer) result {
	return g.setSingleZProbeAtAPosition(b)
}

// doProbeParams gets or sets the Z-probe trigger parameters (G31).
// With a Z word the parameters are written; without, the current
// reading is reported, with the secondary value for modulated probes.
func (g *GCodes) doProbeParams(b *gcode.Buffer) result {
	if !g.allMovesFinishedAndLoaded() {
		return working
	}
	nv := g.platform.NVData()
	params := nv.Data().ProbeParameters()
	if b.Seen('Z') {
		params.Height = float32(b.GetFValue())
		if b.Seen('P') {
			params.AdcValue = int32(b.GetIValue())
		}
		if b.Seen('S') {
			params.CalibTemperature = float32(b.GetFValue())
		} else {
			// Assume the current bed temperature is the calibration
			// temperature.
			params.CalibTemperature = float32(g.platform.GetTemperature(0))
		}
		if b.Seen('C') {
			params.TemperatureCoefficient = float32(b.GetFValue())
		} else {
			params.TemperatureCoefficient = 0.0
		}
		if err := nv.Changed(); err != nil {
			return fail("cannot save probe parameters: %v", err)
		}
		return ok()
	}

	v0 := g.platform.ZProbe()
	if g.platform.ProbeType() == nvram.ProbeModulatedIR {
		return okMsg("%d (%d)", v0, g.platform.ZProbeSecondaryValue())
	}
	return okMsg("%d", v0)
}

func (g *GCodes) doMultiProbe(b *gcode.Buffer) result {
	return g.doMultipleZProbe()
}

func (g *GCodes) doG90(b *gcode.Buffer) result {
	g.axesRelative = false
	return ok()
}

func (g *GCodes) doG91(b *gcode.Buffer) result {
	g.axesRelative = true
	return ok()
}

// doG92 declares the current position to be the given coordinates.
func (g *GCodes) doG92(b *gcode.Buffer) result {
	if !g.allMovesFinishedAndLoaded() {
		return working
	}
	g.loadMoveBufferFromGCode(b, true, false)
	g.move.SetPositions(g.moveBuffer[:platform.Drives])
	return ok()
}

// doResend answers a G998 from a sender that lost a line.
func (g *GCodes) doResend(b *gcode.Buffer) result {
	if !b.Seen('P') {
		return ok()
	}
	return result{done: true, resend: true, message: strconv.Itoa(int(b.GetIValue()))}
}

// doResendRequest is the M998 the parser substitutes for a line whose
// checksum failed: ask the sender to repeat it.
func (g *GCodes) doResendRequest(b *gcode.Buffer) result {
	if !b.Seen('P') {
		return ok()
	}
	return result{done: true, resend: true, message: fmt.Sprintf("%d", int(b.GetIValue()))}
}
