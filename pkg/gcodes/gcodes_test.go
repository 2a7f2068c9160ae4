// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/safety"
)

type fakeMove struct {
	finished        bool
	coords          []float64
	lastProbedZ     float64
	positionsSet    [][]float64
	disabled        bool
	identityCleared bool
	axisComp        map[int]float64
	bedPoints       []ProbePoint
}

func newFakeMove() *fakeMove {
	return &fakeMove{
		finished: true,
		coords:   make([]float64, platform.Drives),
		axisComp: map[int]float64{},
	}
}

func (m *fakeMove) AllMovesAreFinished() bool  { return m.finished }
func (m *fakeMove) ResumeMoving()              {}
func (m *fakeMove) LiveCoordinates() []float64 { return m.coords }
func (m *fakeMove) LastProbedZ() float64       { return m.lastProbedZ }
func (m *fakeMove) SetPositions(coords []float64) {
	saved := append([]float64(nil), coords...)
	m.positionsSet = append(m.positionsSet, saved)
}
func (m *fakeMove) DisableDrives()        { m.disabled = true }
func (m *fakeMove) SetIdentityTransform() { m.identityCleared = true }
func (m *fakeMove) SetAxisCompensation(axis int, tangent float64) {
	m.axisComp[axis] = tangent
}
func (m *fakeMove) SetProbedBedEquation(points []ProbePoint) {
	m.bedPoints = append([]ProbePoint(nil), points...)
}

type fakeHeat struct {
	active    map[int]float64
	standby   map[int]float64
	activated map[int]bool
	atTemp    bool
}

func newFakeHeat() *fakeHeat {
	return &fakeHeat{
		active:    map[int]float64{},
		standby:   map[int]float64{},
		activated: map[int]bool{},
		atTemp:    true,
	}
}

func (h *fakeHeat) SetActiveTemperature(heater int, t float64)  { h.active[heater] = t }
func (h *fakeHeat) ActiveTemperature(heater int) float64        { return h.active[heater] }
func (h *fakeHeat) SetStandbyTemperature(heater int, t float64) { h.standby[heater] = t }
func (h *fakeHeat) Activate(heater int)                         { h.activated[heater] = true }
func (h *fakeHeat) Standby(heater int)                          { h.activated[heater] = false }
func (h *fakeHeat) HeaterAtSetTemperature(heater int) bool      { return h.atTemp }
func (h *fakeHeat) AllHeatersAtSetTemperatures() bool           { return h.atTemp }

type fakeWeb struct {
	in      []byte
	replies []string
}

func (w *fakeWeb) GCodeAvailable() bool { return len(w.in) > 0 }
func (w *fakeWeb) ReadGCode() byte {
	c := w.in[0]
	w.in = w.in[1:]
	return c
}
func (w *fakeWeb) HandleReply(reply string) { w.replies = append(w.replies, reply) }

type fakeHost struct {
	in []byte
}

func (h *fakeHost) ByteAvailable() bool { return len(h.in) > 0 }
func (h *fakeHost) ReadByte() byte {
	c := h.in[0]
	h.in = h.in[1:]
	return c
}

type fixture struct {
	t    *testing.T
	g    *GCodes
	p    *platform.Platform
	move *fakeMove
	heat *fakeHeat
	web  *fakeWeb
	host *fakeHost
	mgr  *safety.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := nvram.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	profile := platform.DefaultProfile()
	profile.Storage.Root = t.TempDir()
	p := platform.New(platform.NewSimBoard(), profile, nvram.NewStore(backend))
	require.NoError(t, p.Init())

	f := &fixture{
		t:    t,
		p:    p,
		move: newFakeMove(),
		heat: newFakeHeat(),
		web:  &fakeWeb{},
		host: &fakeHost{},
		mgr:  safety.New(),
	}
	f.mgr.RegisterDrives(f.move)
	f.g = New(p, f.move, f.heat, f.web, f.host, f.mgr)
	f.g.Init()
	return f
}

// send queues one line on the host serial source.
func (f *fixture) send(line string) {
	f.host.in = append(f.host.in, []byte(line+"\n")...)
}

// sendWeb queues one line on the web source.
func (f *fixture) sendWeb(line string) {
	f.web.in = append(f.web.in, []byte(line+"\n")...)
}

// spin runs n dispatcher passes, playing the planner's role by
// consuming each queued move and tracking the machine position.
func (f *fixture) spin(n int) [][]float64 {
	var moves [][]float64
	for i := 0; i < n; i++ {
		f.g.Spin()
		if coords, _, taken := f.g.ReadMove(); taken {
			saved := append([]float64(nil), coords[:]...)
			moves = append(moves, saved)
			copy(f.move.coords, saved[:platform.Drives])
		}
	}
	return moves
}

func (f *fixture) writeFile(dir, name, content string) {
	f.t.Helper()
	fs := f.p.MassStorage().OpenFile(dir, name, true)
	require.NotNil(f.t, fs)
	require.NoError(f.t, fs.WriteString(content))
	require.NoError(f.t, fs.Close())
}

func (f *fixture) readFile(dir, name string) string {
	f.t.Helper()
	fs := f.p.MassStorage().OpenFile(dir, name, false)
	require.NotNil(f.t, fs)
	var sb strings.Builder
	for {
		c, more := fs.Read()
		if !more {
			break
		}
		sb.WriteByte(c)
	}
	fs.Close()
	return sb.String()
}

func (f *fixture) lastReply() string {
	for i := len(f.web.replies) - 1; i >= 0; i-- {
		if f.web.replies[i] != "" {
			return f.web.replies[i]
		}
	}
	return ""
}

func TestG1QueuesMove(t *testing.T) {
	f := newFixture(t)
	f.send("G1 X10 Y20 F3000")
	moves := f.spin(5)

	require.Len(t, moves, 1)
	assert.Equal(t, 10.0, moves[0][0])
	assert.Equal(t, 20.0, moves[0][1])
	assert.Equal(t, 3000.0, moves[0][platform.Drives])
}

func TestRelativeAxisMovesAccumulate(t *testing.T) {
	f := newFixture(t)
	f.send("G91")
	f.send("G1 X5")
	f.send("G1 X5")
	moves := f.spin(20)

	require.Len(t, moves, 2)
	assert.Equal(t, 5.0, moves[0][0])
	assert.Equal(t, 10.0, moves[1][0])
}

func TestExtrudersAreRelativeByDefault(t *testing.T) {
	f := newFixture(t)
	f.send("G1 E2.5")
	moves := f.spin(5)

	require.Len(t, moves, 1)
	assert.Equal(t, 2.5, moves[0][platform.Axes])
}

func TestInchesScaleMoves(t *testing.T) {
	f := newFixture(t)
	f.send("G20")
	f.send("G1 X2")
	moves := f.spin(10)

	require.Len(t, moves, 1)
	assert.InDelta(t, 50.8, moves[0][0], 1e-9)
}

func TestChecksumFailureRequestsResend(t *testing.T) {
	f := newFixture(t)
	// Correct checksum for "N5 G1 X10" is *84.
	f.send("N5 G1 X10*30")
	moves := f.spin(10)

	assert.Empty(t, moves, "a corrupt line must not queue a move")
	assert.Equal(t, "5", f.lastReply(), "the resend must name the corrupt line")
}

func TestGoodChecksumExecutes(t *testing.T) {
	f := newFixture(t)
	f.send("N5 G1 X10*84")
	moves := f.spin(10)

	require.Len(t, moves, 1)
	assert.Equal(t, 10.0, moves[0][0])
}

func TestHomingPlaysMacroAndEnablesLimits(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.SysDir, "homeall.g", "G91\nG1 Z5 F200\nG90\n")
	f.send("G28")
	moves := f.spin(300)
	require.NotEmpty(t, moves, "the homing macro must produce moves")

	// All axes are homed now, so travel is clipped to the axis maxima.
	f.send("G1 X500")
	moves = f.spin(10)
	require.NotEmpty(t, moves)
	assert.Equal(t, f.p.AxisMaximum(0), moves[len(moves)-1][0])
}

func TestHomeZNeedsXYWithAnalogProbe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.p.SetZProbeType(int(nvram.ProbeIR)))

	f.send("G28 Z")
	f.spin(20)
	assert.Contains(t, f.lastReply(), "Must home X and Y before homing Z")
}

func TestHomeZWithSwitchNeedsNoXY(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.SysDir, "homez.g", "G1 Z0 F200\n")

	f.send("G28 Z")
	moves := f.spin(300)
	assert.NotEmpty(t, moves)
	assert.NotContains(t, f.lastReply(), "Must home")
}

func TestMissingMacroIsReportedAndSkipped(t *testing.T) {
	f := newFixture(t)
	f.send("G28")
	f.spin(100)

	// No homeall.g: the cycle still completes and the source is free.
	f.send("M114")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "X:")
}

func TestM98RunsMacroFromSysDir(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.SysDir, "square.g", "G91\nG1 X10\nG1 Y10\nG90\n")
	f.send("M98 Psquare.g")
	moves := f.spin(300)

	require.Len(t, moves, 3, "two macro moves plus the pop's null move")
	assert.Equal(t, 10.0, moves[0][0])
	assert.Equal(t, 10.0, moves[1][1])
}

func TestBedTempSetAndWait(t *testing.T) {
	f := newFixture(t)
	f.heat.atTemp = false

	f.send("M190 S60")
	f.spin(10)
	assert.Equal(t, 60.0, f.heat.active[0])
	assert.True(t, f.heat.activated[0])

	// Not at temperature yet: the source must still be blocked.
	f.send("M114")
	f.spin(10)
	assert.NotContains(t, f.lastReply(), "X:")

	f.heat.atTemp = true
	f.spin(20)
	assert.Contains(t, f.lastReply(), "X:")
}

func TestFaultedHeaterRefusesNewTarget(t *testing.T) {
	f := newFixture(t)
	f.p.HeaterFault(1)

	f.send("M104 S200")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "M562")
	assert.NotContains(t, f.heat.active, 1)

	f.send("M562 P1")
	f.send("M104 S200")
	f.spin(20)
	assert.Equal(t, 200.0, f.heat.active[1])
	assert.True(t, f.heat.activated[1])
}

func TestFilePrintFlow(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.GCodeDir, "box.g", "G1 X1\nG1 X2")

	f.send("M23 box.g")
	f.send("M24")
	moves := f.spin(100)

	require.Len(t, moves, 2)
	assert.Equal(t, 1.0, moves[0][0])
	assert.Equal(t, 2.0, moves[1][0])
	assert.False(t, f.g.PrintingAFile())

	f.send("M27")
	f.spin(10)
	assert.Equal(t, "Not SD printing.", f.lastReply())
}

func TestEmergencyStopAbortsPrint(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.GCodeDir, "long.g", strings.Repeat("G1 X1\n", 50))

	f.send("M23 long.g")
	f.send("M24")
	f.spin(30)
	require.True(t, f.g.PrintingAFile())

	f.send("M112")
	f.spin(10)

	assert.False(t, f.g.PrintingAFile())
	assert.Equal(t, 0, f.g.StackDepth())
	assert.False(t, f.g.MoveAvailable())
	assert.True(t, f.move.disabled)
	assert.Equal(t, safety.StateError, f.mgr.GetState())
}

func TestM20ListsGCodeFiles(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.GCodeDir, "a.g", "G1 X1\n")
	f.writeFile(platform.GCodeDir, "b.g", "G1 X2\n")

	f.send("M20")
	f.spin(10)
	assert.Equal(t, "a.g\nb.g", f.lastReply())
}

func TestValveCodesReportUnimplemented(t *testing.T) {
	f := newFixture(t)

	f.send("M126")
	f.spin(5)
	assert.Equal(t, "M126 - valves not yet implemented", f.lastReply())

	f.send("M127 P130")
	f.spin(5)
	assert.Equal(t, "M127 - valves not yet implemented", f.lastReply())
}

func TestM28UploadCapturesLines(t *testing.T) {
	f := newFixture(t)
	f.send("M28 up.g")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "Writing to file: up.g")

	f.send("G1 X1")
	f.send("G1 X2")
	f.send("M29")
	moves := f.spin(50)

	assert.Empty(t, moves, "uploaded lines must not execute")
	assert.Equal(t, "G1 X1\nG1 X2\n", f.readFile(platform.GCodeDir, "up.g"))

	// The captured file prints like any other.
	f.send("M23 up.g")
	f.send("M24")
	moves = f.spin(100)
	require.Len(t, moves, 2)
}

func TestWebUploadStopsAtEofMarker(t *testing.T) {
	f := newFixture(t)
	f.send("M560")
	f.spin(10)

	f.host.in = append(f.host.in, []byte("<html>hi</html>"+pageEofString)...)
	f.spin(50)

	assert.Equal(t, "<html>hi</html>", f.readFile(platform.WebDir, "reprap.htm"))

	// The source is back to executing G-codes.
	f.send("M114")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "X:")
}

func TestToolChangeSelectsHeater(t *testing.T) {
	f := newFixture(t)
	f.send("M563 P1 D0 H2")
	f.send("T1")
	f.spin(100)

	assert.Equal(t, 1, f.g.CurrentTool())
	assert.True(t, f.heat.activated[2])
}

func TestToolChangeRunsChangeMacros(t *testing.T) {
	f := newFixture(t)
	f.writeFile(platform.SysDir, "tpre0.g", "G91\nG1 Z2\nG90\n")
	f.writeFile(platform.SysDir, "tpost0.g", "G91\nG1 Z-2\nG90\n")

	f.send("T0")
	moves := f.spin(400)
	assert.Equal(t, 0, f.g.CurrentTool())
	assert.GreaterOrEqual(t, len(moves), 2, "both change macros must run")
}

func TestUnknownToolDeselects(t *testing.T) {
	f := newFixture(t)
	f.send("T0")
	f.spin(100)
	require.Equal(t, 0, f.g.CurrentTool())

	f.send("T7")
	f.spin(100)
	assert.Equal(t, -1, f.g.CurrentTool())
}

func TestG30StoresExplicitPoint(t *testing.T) {
	f := newFixture(t)
	f.send("G30 P0 X10 Y20 Z0.15")
	f.spin(10)

	assert.Equal(t, ProbePoint{X: 10, Y: 20, Z: 0.15, XYSet: true, ZSet: true}, f.g.probePoints[0])
}

func TestG32NeedsThreePoints(t *testing.T) {
	f := newFixture(t)
	f.send("G30 P0 X0 Y0 Z0")
	f.send("G30 P1 X100 Y0 Z0")
	f.send("G32")
	f.spin(20)

	assert.Contains(t, f.lastReply(), "3 or more points")
}

func TestG32NeedsHomedXY(t *testing.T) {
	f := newFixture(t)
	f.send("M557 P0 X0 Y0")
	f.send("M557 P1 X100 Y0")
	f.send("M557 P2 X50 Y100")
	f.send("G32")
	f.spin(20)

	assert.Contains(t, f.lastReply(), "Must home X and Y before bed probing")
}

func TestG32ProbesAllPointsAndFitsBed(t *testing.T) {
	f := newFixture(t)
	f.move.lastProbedZ = 0.25
	// G92 marks the axes homed without moving.
	f.send("G92 X0 Y0 Z0")
	f.send("M557 P0 X0 Y0")
	f.send("M557 P1 X100 Y0")
	f.send("M557 P2 X50 Y100")
	f.send("G32")
	f.spin(600)

	require.Len(t, f.move.bedPoints, 3)
	for _, pt := range f.move.bedPoints {
		assert.True(t, pt.ZSet)
		assert.Equal(t, 0.25, pt.Z)
	}
}

func TestPushPopRestoresModalState(t *testing.T) {
	f := newFixture(t)
	f.send("M120")
	f.send("G91")
	f.send("M121")
	f.send("G1 X5")
	moves := f.spin(50)

	// Pop restored absolute mode, so X5 is a position, not an offset.
	require.NotEmpty(t, moves)
	assert.Equal(t, 5.0, moves[len(moves)-1][0])
}

func TestG92SetsPositionAndHomes(t *testing.T) {
	f := newFixture(t)
	f.send("G92 X100 Y50 Z10")
	f.spin(10)

	require.NotEmpty(t, f.move.positionsSet)
	assert.Equal(t, []float64{100, 50, 10, 0}, f.move.positionsSet[0])
}

func TestM92SetsStepsPerUnit(t *testing.T) {
	f := newFixture(t)
	f.send("M92 X80.5 E420")
	f.spin(10)

	assert.Equal(t, 80.5, f.p.DriveStepsPerUnit(0))
	assert.Equal(t, 420.0, f.p.DriveStepsPerUnit(platform.Axes))
}

func TestM220RejectsNonPositiveFactor(t *testing.T) {
	f := newFixture(t)
	f.send("M220 S0")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "positive")

	f.send("M220 S150")
	f.send("G1 X10 F1000")
	moves := f.spin(20)
	require.NotEmpty(t, moves)
	assert.Equal(t, 1500.0, moves[0][platform.Drives])
}

func TestM115ReportsFirmware(t *testing.T) {
	f := newFixture(t)
	f.send("M115")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "FIRMWARE_NAME")
}

func TestM105ReportsTemperatures(t *testing.T) {
	f := newFixture(t)
	f.send("M105")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "T:")
	assert.Contains(t, f.lastReply(), "B:")
}

func TestM305RecomputesOverheatThreshold(t *testing.T) {
	f := newFixture(t)
	before := f.p.OverheatSum(1)

	f.send("M305 P1 B3988 T10000")
	f.spin(10)
	assert.NotEqual(t, before, f.p.OverheatSum(1))
}

func TestM552SetsIPAddress(t *testing.T) {
	f := newFixture(t)
	f.send("M552 P10.0.0.5")
	f.spin(10)
	assert.Equal(t, [4]byte{10, 0, 0, 5}, f.p.NVData().Data().IPAddress)

	f.send("M552 Pnot-an-address")
	f.spin(10)
	assert.Contains(t, f.lastReply(), "Dud")
}

func TestM555SwitchesEmulation(t *testing.T) {
	f := newFixture(t)
	f.send("M555 P2")
	f.spin(10)
	assert.Equal(t, CompatMarlin, f.g.Emulating())
}

func TestM561ClearsBedTransform(t *testing.T) {
	f := newFixture(t)
	f.send("M561")
	f.spin(10)
	assert.True(t, f.move.identityCleared)
}

func TestM556SetsAxisCompensation(t *testing.T) {
	f := newFixture(t)
	f.send("M556 S100 X0.5 Y-1")
	f.spin(10)
	assert.InDelta(t, 0.005, f.move.axisComp[0], 1e-9)
	assert.InDelta(t, -0.01, f.move.axisComp[1], 1e-9)
}

func TestM999TriggersSoftwareReset(t *testing.T) {
	f := newFixture(t)
	resetRan := false
	f.p.SetResetHook(func() { resetRan = true })

	f.send("M999")
	f.spin(10)
	assert.True(t, resetRan)
}

func TestWebSourceOutranksHost(t *testing.T) {
	f := newFixture(t)
	f.sendWeb("G1 X1")
	f.send("G1 X2")
	moves := f.spin(1)
	all := f.spin(20)

	var xs []float64
	for _, m := range append(moves, all...) {
		xs = append(xs, m[0])
	}
	require.Len(t, xs, 2)
	assert.Equal(t, 1.0, xs[0], "the web move must run first")
}

func TestM0DropsMotorsAndHeaters(t *testing.T) {
	f := newFixture(t)
	f.heat.activated[1] = true
	f.send("M0")
	f.spin(10)

	assert.True(t, f.move.disabled)
	assert.False(t, f.heat.activated[1])
}
