// Motion layer
//
// The hosted build has no stepper timers, so a queued move completes
// within the spin that collects it: the live coordinates jump to the
// target, clipped by whatever endstop or probe fired if the move was
// flagged for checking. The axis skew and probed bed plane transforms
// are still applied on the way to the (virtual) motors, so bed
// compensation behaves the same as on real hardware.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package reprap

import (
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcodes"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

// MoveSource is where queued moves come from, normally the dispatcher.
type MoveSource interface {
	ReadMove() (coords [platform.Drives + 1]float64, checkEndstops bool, ok bool)
}

// Move tracks the machine position and applies the bed and skew
// transforms.
type Move struct {
	platform *platform.Platform
	logger   *log.Logger
	src      MoveSource

	live        [platform.Drives]float64
	feedrate    float64
	lastProbedZ float64

	drivesEnabled bool

	// Bed plane: zCorrection = aX*x + aY*y + aC. identity skips it.
	identity   bool
	aX, aY, aC float64

	// Axis skew tangents: XY, YZ, XZ.
	tangents [3]float64
}

// NewMove creates the motion layer. Init must be called before Spin.
func NewMove(p *platform.Platform) *Move {
	return &Move{
		platform: p,
		logger:   log.GetLogger("move"),
		identity: true,
	}
}

// SetSource wires the dispatcher in. Done after construction because
// the dispatcher itself is built around this Move.
func (m *Move) SetSource(src MoveSource) {
	m.src = src
}

// Init zeroes the position and discards all compensation.
func (m *Move) Init() {
	for i := range m.live {
		m.live[i] = 0
	}
	m.feedrate = 0
	m.lastProbedZ = 0
	m.drivesEnabled = true
	m.SetIdentityTransform()
	m.tangents = [3]float64{}
}

// Exit drops stepper power.
func (m *Move) Exit() {
	m.DisableDrives()
}

// Spin collects at most one queued move and executes it.
func (m *Move) Spin() {
	if m.src == nil {
		return
	}
	coords, checkEndstops, ok := m.src.ReadMove()
	if !ok {
		return
	}
	m.execute(coords, checkEndstops)
}

func (m *Move) execute(coords [platform.Drives + 1]float64, checkEndstops bool) {
	m.drivesEnabled = true
	m.feedrate = coords[platform.Drives]
	for d := 0; d < platform.Drives; d++ {
		target := coords[d]
		if checkEndstops && d < platform.Axes {
			switch m.platform.Stopped(d) {
			case platform.EndStopLowHit:
				target = m.stopPosition(d)
				if d == 2 {
					m.lastProbedZ = target
				}
			case platform.EndStopHighHit:
				target = m.platform.AxisMaximum(d)
			}
		}
		m.live[d] = target
	}
}

// stopPosition is where an axis lands when its low stop fires: the
// axis minimum for a switch, the probe trigger height for an analog
// probe on Z.
func (m *Move) stopPosition(axis int) float64 {
	if axis == 2 && m.platform.ProbeType() != nvram.ProbeSwitch {
		return m.platform.ZProbeStopHeight(m.platform.GetTemperature(0))
	}
	return m.platform.AxisMinimum(axis)
}

// AllMovesAreFinished reports an idle planner. Moves complete within
// the spin that collects them, so the queue is only ever one deep and
// lives in the dispatcher's slot.
func (m *Move) AllMovesAreFinished() bool {
	return true
}

// ResumeMoving releases the pause a canned cycle implies. The hosted
// planner never actually stalls, so there is nothing to release.
func (m *Move) ResumeMoving() {}

// LiveCoordinates returns the machine position for every drive, in
// head space.
func (m *Move) LiveCoordinates() []float64 {
	out := make([]float64, platform.Drives)
	copy(out, m.live[:])
	return out
}

// Feedrate reports the feedrate of the last executed move, mm/min.
func (m *Move) Feedrate() float64 {
	return m.feedrate
}

// LastProbedZ is the Z at which the probe last triggered.
func (m *Move) LastProbedZ() float64 {
	return m.lastProbedZ
}

// SetPositions redeclares the machine position without motion.
func (m *Move) SetPositions(coords []float64) {
	for i := 0; i < platform.Drives && i < len(coords); i++ {
		m.live[i] = coords[i]
	}
}

// DisableDrives cuts stepper power. The next move re-energizes.
func (m *Move) DisableDrives() {
	if m.drivesEnabled {
		m.logger.Debug("drives disabled")
	}
	m.drivesEnabled = false
}

// DrivesEnabled reports stepper power state.
func (m *Move) DrivesEnabled() bool {
	return m.drivesEnabled
}

// SetIdentityTransform discards bed compensation.
func (m *Move) SetIdentityTransform() {
	m.identity = true
	m.aX, m.aY, m.aC = 0, 0, 0
}

// SetAxisCompensation sets one skew tangent: X selects XY, Y selects
// YZ, Z selects XZ.
func (m *Move) SetAxisCompensation(axis int, tangent float64) {
	if axis < 0 || axis >= len(m.tangents) {
		return
	}
	m.tangents[axis] = tangent
}

// AxisCompensation reports one skew tangent.
func (m *Move) AxisCompensation(axis int) float64 {
	if axis < 0 || axis >= len(m.tangents) {
		return 0
	}
	return m.tangents[axis]
}

// SetProbedBedEquation fits the bed plane through the first three
// probed points and enables the correction.
func (m *Move) SetProbedBedEquation(points []gcodes.ProbePoint) {
	var set []gcodes.ProbePoint
	for _, pt := range points {
		if pt.ZSet {
			set = append(set, pt)
		}
	}
	if len(set) < 3 {
		m.logger.Warn("bed equation needs 3 probed points, have %d", len(set))
		return
	}
	p0, p1, p2 := set[0], set[1], set[2]
	nx := (p1.Y-p0.Y)*(p2.Z-p0.Z) - (p1.Z-p0.Z)*(p2.Y-p0.Y)
	ny := (p1.Z-p0.Z)*(p2.X-p0.X) - (p1.X-p0.X)*(p2.Z-p0.Z)
	nz := (p1.X-p0.X)*(p2.Y-p0.Y) - (p1.Y-p0.Y)*(p2.X-p0.X)
	if nz == 0 {
		m.logger.Warn("probed points are collinear, bed equation unchanged")
		return
	}
	m.aX = -nx / nz
	m.aY = -ny / nz
	m.aC = p0.Z - m.aX*p0.X - m.aY*p0.Y
	m.identity = false
	m.logger.Info("bed equation set: z = %.4f*x + %.4f*y + %.4f", m.aX, m.aY, m.aC)
}

// zCorrection is the bed plane height under (x, y).
func (m *Move) zCorrection(x, y float64) float64 {
	if m.identity {
		return 0
	}
	return m.aX*x + m.aY*y + m.aC
}

// MachinePosition returns the axis positions after the skew and bed
// transforms, the coordinates the motors would be sent to.
func (m *Move) MachinePosition() []float64 {
	x, y, z := m.live[0], m.live[1], m.live[2]
	out := make([]float64, platform.Axes)
	out[0] = x + m.tangents[0]*y + m.tangents[2]*z
	out[1] = y + m.tangents[1]*z
	out[2] = z + m.zCorrection(x, y)
	return out
}

// Diagnostics reports motion state for M122.
func (m *Move) Diagnostics() {
	m.platform.Message(platform.GenericMessage, "Move diagnostics:\n")
	mp := m.MachinePosition()
	m.platform.MessageF(platform.GenericMessage,
		"Live position: X%.2f Y%.2f Z%.2f, machine: X%.2f Y%.2f Z%.2f, drives enabled: %v\n",
		m.live[0], m.live[1], m.live[2], mp[0], mp[1], mp[2], m.drivesEnabled)
	if !m.identity {
		m.platform.MessageF(platform.GenericMessage,
			"Bed equation: z = %.4f*x + %.4f*y + %.4f\n", m.aX, m.aY, m.aC)
	}
}
