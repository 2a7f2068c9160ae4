// Package gcodes is the cooperative G-code machine: it assembles lines
// from the web, host and file sources, dispatches them by priority,
// and owns the multi-tick sequences (homing, probing, tool change,
// macro playback) that make a command span many spins. Nothing here
// blocks; a handler that cannot finish returns "not done" and is
// retried on the next spin.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"fmt"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/safety"
)

const (
	// StackSize bounds macro/canned-cycle nesting.
	StackSize = 5

	// MaxProbePoints is the bed probe point table size.
	MaxProbePoints = 5

	// sourcePollBytes caps how many bytes one spin feeds from a live
	// source into its line assembler.
	sourcePollBytes = 16

	// diveHeight is the Z the head is raised to around a probe.
	diveHeight = 5.0

	// sillyZ marks "no Z supplied" in a G30.
	sillyZ = -9999.0
)

// Move is the motion planner as the dispatcher sees it. The planner
// collects queued moves through ReadMove on its own schedule.
type Move interface {
	// AllMovesAreFinished reports an idle planner with an empty queue.
	AllMovesAreFinished() bool

	// ResumeMoving tells the planner the pause implied by a canned
	// cycle is over.
	ResumeMoving()

	// LiveCoordinates returns the machine position for every drive.
	LiveCoordinates() []float64

	// LastProbedZ is the Z at which the probe triggered during the
	// last endstop-checked descent.
	LastProbedZ() float64

	// SetPositions redeclares the machine position (G92, G10).
	SetPositions(coords []float64)

	// DisableDrives cuts stepper power (M18, M84, M0).
	DisableDrives()

	// SetIdentityTransform discards bed compensation (M561).
	SetIdentityTransform()

	// SetAxisCompensation sets one axis skew tangent (M556).
	SetAxisCompensation(axis int, tangent float64)

	// SetProbedBedEquation fits the bed plane from the probed points.
	SetProbedBedEquation(points []ProbePoint)
}

// Heat is the temperature controller as the dispatcher sees it.
type Heat interface {
	SetActiveTemperature(heater int, t float64)
	ActiveTemperature(heater int) float64
	SetStandbyTemperature(heater int, t float64)
	Activate(heater int)
	Standby(heater int)
	HeaterAtSetTemperature(heater int) bool
	AllHeatersAtSetTemperatures() bool
}

// Webserver supplies the highest-priority G-code source and takes the
// replies for it.
type Webserver interface {
	GCodeAvailable() bool
	ReadGCode() byte
	HandleReply(reply string)
}

// ByteSource is a polled byte stream, used for the host serial link.
type ByteSource interface {
	ByteAvailable() bool
	ReadByte() byte
}

// ProbePoint is one bed calibration point.
type ProbePoint struct {
	X, Y, Z float64
	XYSet   bool
	ZSet    bool
}

// stackFrame is the execution context saved by push: the modal flags,
// the feedrate, and the file being printed so a macro can interrupt a
// print and hand it back.
type stackFrame struct {
	drivesRelative bool
	axesRelative   bool
	feedrate       float64
	file           *platform.FileStore
}

// GCodes is the dispatcher instance.
type GCodes struct {
	platform  *platform.Platform
	move      Move
	heat      Heat
	webserver Webserver
	host      ByteSource
	safety    *safety.Manager
	logger    *log.Logger

	webGCode    *gcode.Buffer
	hostGCode   *gcode.Buffer
	fileGCode   *gcode.Buffer
	cannedGCode *gcode.Buffer

	// Modal state
	drivesRelative  bool
	axesRelative    bool
	distanceScale   float64 // mm per G-code unit
	speedFactor     float64
	extrusionFactor float64
	debugEnabled    bool

	axisIsHomed [platform.Axes]bool

	// Single-slot handoff to the planner. Producer is the dispatcher,
	// consumer is the planner; moveAvailable is the handshake. The
	// last slot of moveBuffer is the feedrate in mm/min.
	moveBuffer      [platform.Drives + 1]float64
	lastExtruderPos [platform.Drives - platform.Axes]float64
	moveAvailable   bool
	checkEndstops   bool
	limitAxes       bool

	// Canned-cycle move staging: only drives flagged active are taken
	// from moveToDo, the rest keep their current position.
	moveToDo    [platform.Drives + 1]float64
	activeDrive [platform.Drives + 1]bool

	// Execution stack
	stack        [StackSize]stackFrame
	stackPointer int

	// File printing, macro playback, host upload
	fileBeingPrinted     *platform.FileStore
	fileToPrint          *platform.FileStore
	fileBeingWritten     *platform.FileStore
	writingWebFile       bool
	eofStringCounter     int
	doingCannedCycleFile bool

	machineName string
	password    string

	// Canned-cycle sub-state
	dwellEnd             uint64
	dwellWaiting         bool
	homeX, homeY, homeZ  bool
	probePoints          [MaxProbePoints]ProbePoint
	probeCount           int
	cannedCycleMoveCount int
	cannedMoveQueued     bool
	zProbesSet           bool
	offsetSet            bool
	offsetRecord         [platform.Drives + 1]float64

	tools              []Tool
	currentTool        int
	toolChangeSequence int

	unsupportedEmulationReported bool
}

// New wires a dispatcher. Init must be called before Spin.
func New(p *platform.Platform, move Move, heat Heat, web Webserver, host ByteSource, mgr *safety.Manager) *GCodes {
	return &GCodes{
		platform:  p,
		move:      move,
		heat:      heat,
		webserver: web,
		host:      host,
		safety:    mgr,
		logger:    log.GetLogger("gcodes"),
	}
}

// Init resets all modal and sequence state.
func (g *GCodes) Init() {
	g.webGCode = gcode.NewBuffer("web")
	g.hostGCode = gcode.NewBuffer("serial")
	g.fileGCode = gcode.NewBuffer("file")
	g.cannedGCode = gcode.NewBuffer("macro")

	g.drivesRelative = true
	g.axesRelative = false
	g.distanceScale = 1.0
	g.speedFactor = 1.0
	g.extrusionFactor = 1.0
	g.limitAxes = true
	for i := range g.lastExtruderPos {
		g.lastExtruderPos[i] = 0
	}
	g.moveBuffer[platform.Drives] = 100.0 * 60.0 // mm/min until the first F word

	g.moveAvailable = false
	g.checkEndstops = false
	g.stackPointer = 0
	g.doingCannedCycleFile = false
	g.dwellWaiting = false
	g.probeCount = 0
	g.cannedCycleMoveCount = 0
	g.cannedMoveQueued = false
	g.zProbesSet = false
	g.offsetSet = false
	g.currentTool = -1
	g.toolChangeSequence = 0
	if g.machineName == "" {
		g.machineName = "My RepRap"
	}
	// Tool 0 on the first hot end exists out of the box; M563 adds more.
	g.tools = []Tool{{Number: 0, Heater: 1, Drive: platform.Axes}}

	for i := range g.axisIsHomed {
		g.axisIsHomed[i] = false
	}
	for i := range g.probePoints {
		g.probePoints[i] = ProbePoint{}
	}
	if g.safety != nil {
		g.safety.RegisterPrintAborter(g)
	}
}

// Spin runs one dispatcher pass: finish the active command if there is
// one, else take a fresh line from the highest-priority source, else
// advance file printing. The order web, serial, file is a priority:
// were file not last, the live sources would never get a look in
// during a print.
func (g *GCodes) Spin() {
	for _, b := range []*gcode.Buffer{g.webGCode, g.hostGCode, g.fileGCode} {
		if b.Active() {
			g.continueCommand(b)
			return
		}
	}

	if g.pollWeb() {
		return
	}
	if g.pollHost() {
		return
	}
	g.doFilePrint(g.fileGCode)
}

func (g *GCodes) pollWeb() bool {
	if g.webserver == nil || !g.webserver.GCodeAvailable() {
		return false
	}
	for i := 0; i < sourcePollBytes && g.webserver.GCodeAvailable(); i++ {
		if g.webGCode.Put(g.webserver.ReadGCode()) {
			if g.fileBeingWritten != nil {
				g.writeGCodeToFile(g.webGCode)
			} else {
				g.dispatch(g.webGCode)
			}
			break
		}
	}
	return true
}

func (g *GCodes) pollHost() bool {
	if g.host == nil || !g.host.ByteAvailable() {
		return false
	}
	if g.writingWebFile {
		// M560 upload: raw bytes, no line assembly, until the EoF
		// marker shows up.
		for i := 0; i < sourcePollBytes && g.host.ByteAvailable(); i++ {
			g.writeHTMLToFile(g.host.ReadByte())
			if !g.writingWebFile {
				break
			}
		}
		return true
	}
	for i := 0; i < sourcePollBytes && g.host.ByteAvailable(); i++ {
		if g.hostGCode.Put(g.host.ReadByte()) {
			if g.fileBeingWritten != nil {
				g.writeGCodeToFile(g.hostGCode)
			} else {
				g.dispatch(g.hostGCode)
			}
			break
		}
	}
	return true
}

// doFilePrint feeds the file being printed into the given source one
// character per call, dispatching each completed line. At end of file
// a final newline is injected in case the file lacked one.
func (g *GCodes) doFilePrint(b *gcode.Buffer) {
	if g.fileBeingPrinted == nil {
		return
	}
	c, more := g.fileBeingPrinted.Read()
	if more {
		if b.Put(c) {
			g.dispatch(b)
		}
		return
	}
	if b.Put('\n') {
		g.dispatch(b)
	}
	g.fileBeingPrinted.Close()
	g.fileBeingPrinted = nil
}

// dispatch runs a freshly completed line.
func (g *GCodes) dispatch(b *gcode.Buffer) {
	b.SetExecuting()
	if b.Line() == "" {
		// An empty or comment-only line still gets its ok so the
		// sender's window keeps moving.
		g.reply(b, ok())
		b.SetFinished(true)
		return
	}
	g.continueCommand(b)
}

// continueCommand (re)invokes the handler for the buffer's command.
func (g *GCodes) continueCommand(b *gcode.Buffer) {
	res := g.actOnGcode(b)
	if res.done {
		g.reply(b, res)
	}
	b.SetFinished(res.done)
}

// QueueFileToPrint opens a file from the gcodes directory and holds it
// ready for M24.
func (g *GCodes) QueueFileToPrint(name string) bool {
	f := g.platform.MassStorage().OpenFile(platform.GCodeDir, name, false)
	if f == nil {
		return false
	}
	if g.fileToPrint != nil {
		g.fileToPrint.Close()
	}
	g.fileToPrint = f
	return true
}

// StartFilePrint begins printing the queued file (M24).
func (g *GCodes) StartFilePrint() bool {
	if g.fileToPrint == nil {
		return false
	}
	g.fileBeingPrinted = g.fileToPrint
	g.fileToPrint = nil
	return true
}

// PauseFilePrint suspends the print but keeps the file open (M25).
func (g *GCodes) PauseFilePrint() {
	if g.fileBeingPrinted != nil {
		g.fileToPrint = g.fileBeingPrinted
		g.fileBeingPrinted = nil
	}
}

// AbortPrint is the emergency-stop hook: the print is dropped on the
// floor and all sequence state is reset.
func (g *GCodes) AbortPrint() {
	if g.fileBeingPrinted != nil {
		g.fileBeingPrinted.Close()
		g.fileBeingPrinted = nil
	}
	if g.fileToPrint != nil {
		g.fileToPrint.Close()
		g.fileToPrint = nil
	}
	g.fileGCode.Init()
	g.webGCode.Init()
	g.hostGCode.Init()
	g.cannedGCode.Init()
	g.moveAvailable = false
	g.checkEndstops = false
	g.dwellWaiting = false
	g.homeX, g.homeY, g.homeZ = false, false, false
	g.probeCount = 0
	g.cannedCycleMoveCount = 0
	g.cannedMoveQueued = false
	g.offsetSet = false
	g.toolChangeSequence = 0
	g.doingCannedCycleFile = false
	g.stackPointer = 0
	g.platform.SetZProbing(false)
}

// FractionOfFilePrinted reports print progress for M27.
func (g *GCodes) FractionOfFilePrinted() float64 {
	if g.fileBeingPrinted == nil {
		return -1
	}
	return g.fileBeingPrinted.FractionRead()
}

// PrintingAFile reports whether a print is running.
func (g *GCodes) PrintingAFile() bool {
	return g.fileBeingPrinted != nil
}

// allMovesFinishedAndLoaded waits for the planner to drain and loads
// the move buffer with the live position, so whatever runs next starts
// from where the machine actually is. Call until it returns true.
func (g *GCodes) allMovesFinishedAndLoaded() bool {
	if g.moveAvailable {
		return false
	}
	if !g.move.AllMovesAreFinished() {
		return false
	}
	g.move.ResumeMoving()
	coords := g.move.LiveCoordinates()
	for i := 0; i < platform.Drives && i < len(coords); i++ {
		g.moveBuffer[i] = coords[i]
	}
	return true
}

// ReadMove hands the queued move to the planner and empties the slot.
func (g *GCodes) ReadMove() (coords [platform.Drives + 1]float64, checkEndstops bool, ok bool) {
	if !g.moveAvailable {
		return coords, false, false
	}
	coords = g.moveBuffer
	checkEndstops = g.checkEndstops
	g.moveAvailable = false
	g.checkEndstops = false
	return coords, checkEndstops, true
}

// MoveAvailable reports a queued move without consuming it.
func (g *GCodes) MoveAvailable() bool {
	return g.moveAvailable
}

// Feedrate reports the current feedrate in mm/min.
func (g *GCodes) Feedrate() float64 {
	return g.moveBuffer[platform.Drives]
}

// MachineName reports the M550 machine name.
func (g *GCodes) MachineName() string {
	return g.machineName
}

// Diagnostics reports dispatcher state for M122.
func (g *GCodes) Diagnostics() {
	g.platform.Message(platform.GenericMessage, "GCodes diagnostics:\n")
	g.platform.MessageF(platform.GenericMessage, "Move available: %v, stack depth: %d\n",
		g.moveAvailable, g.stackPointer)
	for _, b := range []*gcode.Buffer{g.webGCode, g.hostGCode, g.fileGCode, g.cannedGCode} {
		g.platform.MessageF(platform.GenericMessage, "%s source state: %d\n", b.Identity(), b.State())
	}
}

func (g *GCodes) debugf(format string, args ...interface{}) {
	if g.debugEnabled {
		g.platform.MessageF(platform.DebugMessage, format, args...)
	}
	g.logger.Debug(fmt.Sprintf(format, args...))
}
