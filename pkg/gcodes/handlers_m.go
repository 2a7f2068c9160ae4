// M-code handlers
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"net"
	"strconv"
	"strings"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

const (
	firmwareName    = "RepRap Go Firmware"
	firmwareVersion = "1.09"
	electronics     = "Duet"
)

// currentToolHeater maps the selected tool to its heater; heater 1 is
// the fallback so temperature commands work before any T word.
func (g *GCodes) currentToolHeater() int {
	if t := g.getTool(g.currentTool); t != nil {
		return t.Heater
	}
	return 1
}

// checkHeaterUsable refuses to power a heater whose fault latch is
// still set. The latch is only cleared by an explicit M562.
func (g *GCodes) checkHeaterUsable(heater int) (result, bool) {
	if g.platform.HeaterFaulted(heater) {
		return fail("Heater %d is in a fault state; send M562 P%d to reset it", heater, heater), false
	}
	return result{}, true
}

// doStop is M0/M1: drain the planner, then drop motors and heaters.
func (g *GCodes) doStop(b *gcode.Buffer) result {
	if !g.allMovesFinishedAndLoaded() {
		return working
	}
	g.move.DisableDrives()
	if g.heat != nil {
		for h := 0; h < g.platform.NumHeaters(); h++ {
			g.heat.Standby(h)
		}
	}
	return ok()
}

func (g *GCodes) doMotorsOff(b *gcode.Buffer) result {
	if !g.allMovesFinishedAndLoaded() {
		return working
	}
	g.move.DisableDrives()
	return ok()
}

func (g *GCodes) doListFiles(b *gcode.Buffer) result {
	names, err := g.platform.MassStorage().FileNames(platform.GCodeDir)
	if err != nil {
		return fail("cannot list files: %v", err)
	}
	return okMsg("%s", strings.Join(names, "\n"))
}

func (g *GCodes) doSelectFile(b *gcode.Buffer) result {
	name := b.GetUnprecedentedString()
	if !g.QueueFileToPrint(name) {
		return fail("GCode file %s not found", name)
	}
	return ok()
}

func (g *GCodes) doStartPrint(b *gcode.Buffer) result {
	if !g.StartFilePrint() {
		return fail("Cannot print: no file selected")
	}
	return ok()
}

func (g *GCodes) doPausePrint(b *gcode.Buffer) result {
	g.PauseFilePrint()
	return ok()
}

func (g *GCodes) doPrintStatus(b *gcode.Buffer) result {
	if g.fileBeingPrinted == nil {
		return okMsg("Not SD printing.")
	}
	return okMsg("SD printing byte %d/%d", g.fileBeingPrinted.Position(), g.fileBeingPrinted.Length())
}

// doBeginWrite starts an M28 upload; subsequent lines are written to
// the file instead of being executed, until M29.
func (g *GCodes) doBeginWrite(b *gcode.Buffer) result {
	name := b.GetUnprecedentedString()
	f := g.platform.MassStorage().OpenFile(platform.GCodeDir, name, true)
	if f == nil {
		return fail("Cannot open file %s for writing", name)
	}
	g.fileBeingWritten = f
	return okMsg("Writing to file: %s", name)
}

// doEndWrite only runs when no upload is in progress; during one, M29
// is intercepted on the write path.
func (g *GCodes) doEndWrite(b *gcode.Buffer) result {
	return ok()
}

func (g *GCodes) doDeleteFile(b *gcode.Buffer) result {
	name := b.GetUnprecedentedString()
	if err := g.platform.MassStorage().Delete(platform.GCodeDir, name); err != nil {
		return fail("Could not delete file %s", name)
	}
	return ok()
}

func (g *GCodes) doAtxOn(b *gcode.Buffer) result {
	g.platform.SetAtxPower(true)
	return ok()
}

func (g *GCodes) doAtxOff(b *gcode.Buffer) result {
	g.platform.SetAtxPower(false)
	return ok()
}

func (g *GCodes) doExtruderAbsolute(b *gcode.Buffer) result {
	g.drivesRelative = false
	return ok()
}

func (g *GCodes) doExtruderRelative(b *gcode.Buffer) result {
	g.drivesRelative = true
	return ok()
}

func (g *GCodes) doStepsPerUnit(b *gcode.Buffer) result {
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.platform.SetDriveStepsPerUnit(axis, b.GetFValue())
		}
	}
	if b.Seen('E') {
		g.platform.SetDriveStepsPerUnit(platform.Axes+g.selectedExtruder(), b.GetFValue())
	}
	return ok()
}

func (g *GCodes) doMacroCall(b *gcode.Buffer) result {
	if !b.Seen('P') {
		return ok()
	}
	if g.doFileCannedCycles(b.GetString()) {
		return ok()
	}
	return working
}

func (g *GCodes) doMacroReturn(b *gcode.Buffer) result {
	if g.fileCannedCyclesReturn() {
		return ok()
	}
	return working
}

func (g *GCodes) doSetExtruderTemp(b *gcode.Buffer) result {
	h := g.currentToolHeater()
	if res, usable := g.checkHeaterUsable(h); !usable {
		return res
	}
	if b.Seen('S') && g.heat != nil {
		g.heat.SetActiveTemperature(h, b.GetFValue())
		g.heat.Activate(h)
	}
	return ok()
}

func (g *GCodes) doReportTemps(b *gcode.Buffer) result {
	return okMsg("T:%.1f B:%.1f", g.platform.GetTemperature(g.currentToolHeater()), g.platform.GetTemperature(0))
}

func (g *GCodes) doFanOn(b *gcode.Buffer) result {
	if b.Seen('I') {
		g.platform.SetFanInverted(b.GetIValue() > 0)
	}
	if b.Seen('S') {
		v := b.GetFValue()
		if v > 1.0 {
			v /= 255.0
		}
		if v < 0 {
			v = 0
		}
		if v > 1.0 {
			v = 1.0
		}
		g.platform.SetFanValue(uint8(v*255.0 + 0.5))
	}
	return ok()
}

func (g *GCodes) doFanOff(b *gcode.Buffer) result {
	g.platform.SetFanValue(0)
	return ok()
}

// Valve control is accepted but not wired to anything: slicers emit
// M126/M127 for machines that have one, and the reply says so rather
// than flagging the command as invalid.
func (g *GCodes) doValveOpen(b *gcode.Buffer) result {
	return okMsg("M126 - valves not yet implemented")
}

func (g *GCodes) doValveClosed(b *gcode.Buffer) result {
	return okMsg("M127 - valves not yet implemented")
}

func (g *GCodes) doSetExtruderTempWait(b *gcode.Buffer) result {
	h := g.currentToolHeater()
	if res, usable := g.checkHeaterUsable(h); !usable {
		return res
	}
	if g.heat == nil {
		return ok()
	}
	if b.Seen('S') {
		g.heat.SetActiveTemperature(h, b.GetFValue())
		g.heat.Activate(h)
	}
	if !g.heat.HeaterAtSetTemperature(h) {
		return working
	}
	return ok()
}

// doSetLineNumber is M110; the line counter itself lives in the parser,
// which already took the N word, so there is nothing left to do.
func (g *GCodes) doSetLineNumber(b *gcode.Buffer) result {
	return ok()
}

func (g *GCodes) doDebug(b *gcode.Buffer) result {
	if b.Seen('S') {
		g.debugEnabled = b.GetIValue() > 0
	}
	return ok()
}

func (g *GCodes) doEmergencyStop(b *gcode.Buffer) result {
	if g.safety != nil {
		g.safety.EmergencyStop("M112 received")
	}
	return ok()
}

func (g *GCodes) doReportPosition(b *gcode.Buffer) result {
	c := g.move.LiveCoordinates()
	for len(c) < platform.Drives {
		c = append(c, 0)
	}
	return okMsg("X:%.2f Y:%.2f Z:%.2f E:%.2f", c[0], c[1], c[2], c[platform.Axes])
}

func (g *GCodes) doVersion(b *gcode.Buffer) result {
	return okMsg("FIRMWARE_NAME: %s FIRMWARE_VERSION: %s ELECTRONICS: %s", firmwareName, firmwareVersion, electronics)
}

func (g *GCodes) doWaitForTemps(b *gcode.Buffer) result {
	if !g.allMovesFinishedAndLoaded() {
		return working
	}
	if g.heat != nil && !g.heat.AllHeatersAtSetTemperatures() {
		return working
	}
	return ok()
}

func (g *GCodes) doPush(b *gcode.Buffer) result {
	if g.push() {
		return ok()
	}
	return working
}

func (g *GCodes) doPop(b *gcode.Buffer) result {
	if g.pop() {
		return ok()
	}
	return working
}

func (g *GCodes) doDiagnostics(b *gcode.Buffer) result {
	g.platform.Diagnostics()
	g.Diagnostics()
	return ok()
}

func (g *GCodes) doSetBedTemp(b *gcode.Buffer) result {
	if res, usable := g.checkHeaterUsable(0); !usable {
		return res
	}
	if b.Seen('S') && g.heat != nil {
		g.heat.SetActiveTemperature(0, b.GetFValue())
		g.heat.Activate(0)
	}
	return ok()
}

func (g *GCodes) doSetBedTempWait(b *gcode.Buffer) result {
	if res, usable := g.checkHeaterUsable(0); !usable {
		return res
	}
	if g.heat == nil {
		return ok()
	}
	if b.Seen('S') {
		g.heat.SetActiveTemperature(0, b.GetFValue())
		g.heat.Activate(0)
	}
	if !g.heat.HeaterAtSetTemperature(0) {
		return working
	}
	return ok()
}

func (g *GCodes) doAccelerations(b *gcode.Buffer) result {
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.platform.SetAcceleration(axis, b.GetFValue()*g.distanceScale)
		}
	}
	if b.Seen('E') {
		g.platform.SetAcceleration(platform.Axes+g.selectedExtruder(), b.GetFValue()*g.distanceScale)
	}
	return ok()
}

func (g *GCodes) doMaxFeedrates(b *gcode.Buffer) result {
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.platform.SetMaxFeedrate(axis, b.GetFValue()*g.distanceScale)
		}
	}
	if b.Seen('E') {
		g.platform.SetMaxFeedrate(platform.Axes+g.selectedExtruder(), b.GetFValue()*g.distanceScale)
	}
	return ok()
}

// doAxisLimits is M208: S1 sets the minima, anything else the maxima.
func (g *GCodes) doAxisLimits(b *gcode.Buffer) result {
	setMin := b.Seen('S') && b.GetIValue() == 1
	for axis := 0; axis < platform.Axes; axis++ {
		if !b.Seen(axisLetters[axis]) {
			continue
		}
		v := b.GetFValue() * g.distanceScale
		if setMin {
			g.platform.SetAxisMinimum(axis, v)
		} else {
			g.platform.SetAxisMaximum(axis, v)
		}
	}
	return ok()
}

func (g *GCodes) doHomeFeedrates(b *gcode.Buffer) result {
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.platform.SetHomeFeedRate(axis, b.GetFValue()*g.distanceScale)
		}
	}
	return ok()
}

func (g *GCodes) doSpeedFactor(b *gcode.Buffer) result {
	if b.Seen('S') {
		v := b.GetFValue()
		if v <= 0 {
			return fail("M220 speed factor must be positive")
		}
		g.speedFactor = v / 100.0
	}
	return ok()
}

func (g *GCodes) doExtrusionFactor(b *gcode.Buffer) result {
	if b.Seen('S') {
		v := b.GetFValue()
		if v <= 0 {
			return fail("M221 extrusion factor must be positive")
		}
		g.extrusionFactor = v / 100.0
	}
	return ok()
}

// setPIDFromGCode folds the present P/I/D/T/S/B words into one heater's
// control record and persists it.
func (g *GCodes) setPIDFromGCode(b *gcode.Buffer, heater int) result {
	if heater < 0 || heater >= g.platform.NumHeaters() {
		return fail("Heater %d out of range", heater)
	}
	nv := g.platform.NVData()
	params := &nv.Data().PidParams[heater]
	if b.Seen('P') {
		params.KP = float32(b.GetFValue())
	}
	if b.Seen('I') {
		params.KI = float32(b.GetFValue())
	}
	if b.Seen('D') {
		params.KD = float32(b.GetFValue())
	}
	if b.Seen('T') {
		params.KT = float32(b.GetFValue())
	}
	if b.Seen('S') {
		params.KS = float32(b.GetFValue())
	}
	if b.Seen('B') {
		params.FullBand = float32(b.GetFValue())
	}
	if err := nv.Changed(); err != nil {
		return fail("cannot save heater parameters: %v", err)
	}
	return ok()
}

func (g *GCodes) doHeaterPID(b *gcode.Buffer) result {
	heater := 1
	if b.Seen('H') {
		heater = b.GetIValue()
	}
	return g.setPIDFromGCode(b, heater)
}

func (g *GCodes) doBedPID(b *gcode.Buffer) result {
	return g.setPIDFromGCode(b, 0)
}

// doThermistor is M305: P heater, T resistance at 25C, B beta, R series
// resistance. Changing the model moves the overheat thresholds, so the
// sampler's limits are recomputed before the next tick can use them.
func (g *GCodes) doThermistor(b *gcode.Buffer) result {
	heater := 1
	if b.Seen('P') {
		heater = b.GetIValue()
	}
	if heater < 0 || heater >= g.platform.NumHeaters() {
		return fail("Heater %d out of range", heater)
	}
	nv := g.platform.NVData()
	params := &nv.Data().PidParams[heater]

	r25 := float64(params.ThermistorR25())
	beta := float64(params.ThermistorBeta)
	if b.Seen('T') {
		r25 = b.GetFValue()
	}
	if b.Seen('B') {
		beta = b.GetFValue()
	}
	params.SetThermistorR25AndBeta(float32(r25), float32(beta))
	if b.Seen('R') {
		params.ThermistorSeriesR = float32(b.GetFValue())
	}
	g.platform.RecomputeOverheatSums()
	if err := nv.Changed(); err != nil {
		return fail("cannot save thermistor parameters: %v", err)
	}
	return ok()
}

// doPrintSettings is M503: echo the startup configuration file.
func (g *GCodes) doPrintSettings(b *gcode.Buffer) result {
	f := g.platform.MassStorage().OpenFile(platform.SysDir, platform.ConfigFile, false)
	if f == nil {
		return fail("Configuration file %s not found", platform.ConfigFile)
	}
	var sb strings.Builder
	for {
		c, more := f.Read()
		if !more {
			break
		}
		sb.WriteByte(c)
	}
	f.Close()
	return okMsg("%s", sb.String())
}

func (g *GCodes) doMacAddress(b *gcode.Buffer) result {
	nv := g.platform.NVData()
	if !b.Seen('P') {
		m := nv.Data().MacAddress
		return okMsg("MAC: %02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
	}
	parts := strings.Split(b.GetString(), ":")
	if len(parts) != 6 {
		return fail("Dud MAC address: %s", b.GetString())
	}
	var mac [6]byte
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return fail("Dud MAC address: %s", b.GetString())
		}
		mac[i] = byte(v)
	}
	nv.Data().MacAddress = mac
	if err := nv.Changed(); err != nil {
		return fail("cannot save MAC address: %v", err)
	}
	return ok()
}

func (g *GCodes) doMachineName(b *gcode.Buffer) result {
	if b.Seen('P') {
		g.machineName = b.GetString()
		return ok()
	}
	return okMsg("RepRap name: %s", g.machineName)
}

func (g *GCodes) doPassword(b *gcode.Buffer) result {
	if b.Seen('P') {
		g.password = b.GetString()
	}
	return ok()
}

func parseQuad(s string) ([4]byte, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return [4]byte{}, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return [4]byte{}, false
	}
	var out [4]byte
	copy(out[:], v4)
	return out, true
}

func (g *GCodes) setNetQuad(b *gcode.Buffer, field *[4]byte, what string) result {
	nv := g.platform.NVData()
	if !b.Seen('P') {
		q := *field
		return okMsg("%s: %d.%d.%d.%d", what, q[0], q[1], q[2], q[3])
	}
	q, okAddr := parseQuad(b.GetString())
	if !okAddr {
		return fail("Dud %s: %s", what, b.GetString())
	}
	*field = q
	if err := nv.Changed(); err != nil {
		return fail("cannot save %s: %v", what, err)
	}
	return ok()
}

func (g *GCodes) doIPAddress(b *gcode.Buffer) result {
	return g.setNetQuad(b, &g.platform.NVData().Data().IPAddress, "IP address")
}

func (g *GCodes) doNetMask(b *gcode.Buffer) result {
	return g.setNetQuad(b, &g.platform.NVData().Data().NetMask, "netmask")
}

func (g *GCodes) doGateway(b *gcode.Buffer) result {
	return g.setNetQuad(b, &g.platform.NVData().Data().Gateway, "gateway")
}

func (g *GCodes) doEmulation(b *gcode.Buffer) result {
	if b.Seen('P') {
		if err := g.setEmulation(Compatibility(b.GetIValue())); err != nil {
			return fail("cannot save emulation: %v", err)
		}
		return ok()
	}
	return okMsg("Emulating %s", g.Emulating())
}

// doAxisCompensation is M556: S is the measurement distance, the axis
// words the deviations over it.
func (g *GCodes) doAxisCompensation(b *gcode.Buffer) result {
	if !b.Seen('S') {
		return ok()
	}
	s := b.GetFValue()
	if s == 0 {
		return fail("M556 S must be non-zero")
	}
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.move.SetAxisCompensation(axis, b.GetFValue()/s)
		}
	}
	return ok()
}

// doProbePoint is M557: set one bed probe point's X and Y.
func (g *GCodes) doProbePoint(b *gcode.Buffer) result {
	if !b.Seen('P') {
		return ok()
	}
	point := b.GetIValue()
	if point < 0 || point >= MaxProbePoints {
		return fail("Probe point %d out of range", point)
	}
	if b.Seen('X') {
		g.probePoints[point].X = b.GetFValue()
		g.probePoints[point].XYSet = true
	}
	if b.Seen('Y') {
		g.probePoints[point].Y = b.GetFValue()
		g.probePoints[point].XYSet = true
	}
	g.probePoints[point].ZSet = false
	return ok()
}

func (g *GCodes) doProbeType(b *gcode.Buffer) result {
	if !b.Seen('P') {
		return okMsg("Z Probe type is %d", g.platform.ProbeType())
	}
	if err := g.platform.SetZProbeType(b.GetIValue()); err != nil {
		return fail("cannot set probe type: %v", err)
	}
	return ok()
}

// doUploadSys is M559: receive a file into the sys directory,
// config.g unless P names another.
func (g *GCodes) doUploadSys(b *gcode.Buffer) result {
	name := platform.ConfigFile
	if b.Seen('P') {
		name = b.GetString()
	}
	f := g.platform.MassStorage().OpenFile(platform.SysDir, name, true)
	if f == nil {
		return fail("Cannot open file %s for writing", name)
	}
	g.fileBeingWritten = f
	return okMsg("Writing to file: %s", name)
}

// doUploadWeb is M560: receive the web interface page as raw bytes,
// terminated by the EoF marker rather than by a G-code.
func (g *GCodes) doUploadWeb(b *gcode.Buffer) result {
	name := "reprap.htm"
	f := g.platform.MassStorage().OpenFile(platform.WebDir, name, true)
	if f == nil {
		return fail("Cannot open file %s for writing", name)
	}
	g.fileBeingWritten = f
	g.writingWebFile = true
	g.eofStringCounter = 0
	return okMsg("Writing to file: %s", name)
}

func (g *GCodes) doClearBedTransform(b *gcode.Buffer) result {
	g.move.SetIdentityTransform()
	g.zProbesSet = false
	return ok()
}

func (g *GCodes) doResetHeaterFault(b *gcode.Buffer) result {
	if b.Seen('P') {
		h := b.GetIValue()
		if h < 0 || h >= g.platform.NumHeaters() {
			return fail("Heater %d out of range", h)
		}
		g.platform.ResetHeaterFault(h)
		return ok()
	}
	for h := 0; h < g.platform.NumHeaters(); h++ {
		g.platform.ResetHeaterFault(h)
	}
	return ok()
}

// doDefineTool is M563: P number, D drive, H heater. Redefining an
// existing number updates it in place.
func (g *GCodes) doDefineTool(b *gcode.Buffer) result {
	if !b.Seen('P') {
		return fail("M563 needs a P tool number")
	}
	number := b.GetIValue()
	if number < 0 {
		return fail("Tool number must not be negative")
	}
	t := Tool{Number: number, Heater: 1, Drive: platform.Axes}
	if b.Seen('D') {
		t.Drive = platform.Axes + b.GetIValue()
	}
	if b.Seen('H') {
		t.Heater = b.GetIValue()
	}
	if t.Heater < 0 || t.Heater >= g.platform.NumHeaters() {
		return fail("Heater %d out of range", t.Heater)
	}
	if t.Drive < platform.Axes || t.Drive >= platform.Drives {
		return fail("Drive %d out of range", t.Drive-platform.Axes)
	}
	if existing := g.getTool(number); existing != nil {
		*existing = t
	} else {
		g.tools = append(g.tools, t)
	}
	return ok()
}

func (g *GCodes) doLimitAxes(b *gcode.Buffer) result {
	if b.Seen('S') {
		g.limitAxes = b.GetIValue() > 0
	}
	return ok()
}

func (g *GCodes) doInstantDv(b *gcode.Buffer) result {
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.platform.SetInstantDv(axis, b.GetFValue()*g.distanceScale)
		}
	}
	if b.Seen('E') {
		g.platform.SetInstantDv(platform.Axes+g.selectedExtruder(), b.GetFValue()*g.distanceScale)
	}
	return ok()
}

func (g *GCodes) doMotorCurrents(b *gcode.Buffer) result {
	for axis := 0; axis < platform.Axes; axis++ {
		if b.Seen(axisLetters[axis]) {
			g.platform.SetMotorCurrent(axis, b.GetFValue())
		}
	}
	if b.Seen('E') {
		g.platform.SetMotorCurrent(platform.Axes+g.selectedExtruder(), b.GetFValue())
	}
	return ok()
}

func (g *GCodes) doRestart(b *gcode.Buffer) result {
	g.platform.SoftwareReset(nvram.ReasonUser)
	return ok()
}
