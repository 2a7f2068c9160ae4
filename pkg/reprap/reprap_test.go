// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package reprap

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/safety"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/webserver"
)

type scriptWeb struct {
	in      []byte
	replies []string
}

func (w *scriptWeb) GCodeAvailable() bool { return len(w.in) > 0 }

func (w *scriptWeb) ReadGCode() byte {
	if len(w.in) == 0 {
		return 0
	}
	c := w.in[0]
	w.in = w.in[1:]
	return c
}

func (w *scriptWeb) HandleReply(reply string) {
	w.replies = append(w.replies, reply)
}

type silentHost struct{}

func (silentHost) ByteAvailable() bool { return false }
func (silentHost) ReadByte() byte      { return 0 }

func newMachine(t *testing.T) (*RepRap, *scriptWeb, *safety.Manager, *platform.Platform) {
	t.Helper()
	p, _ := newPlatform(t)
	mgr := safety.New()
	web := &scriptWeb{}
	r := New(p, mgr, web, silentHost{})
	r.Init()
	return r, web, mgr, p
}

func spinMachine(r *RepRap, n int) {
	for i := 0; i < n; i++ {
		r.Spin()
	}
}

func TestWebCommandMovesTheMachine(t *testing.T) {
	r, web, _, _ := newMachine(t)

	web.in = []byte("G1 X25 Y10 F3000\n")
	spinMachine(r, 10)

	live := r.Move().LiveCoordinates()
	assert.Equal(t, 25.0, live[0])
	assert.Equal(t, 10.0, live[1])
	assert.Equal(t, platform.ModuleNone, r.SpinningModule())
}

func TestStatusSnapshot(t *testing.T) {
	r, _, _, _ := newMachine(t)
	spinMachine(r, 2)

	st := r.Status()
	assert.Equal(t, "I", st.State)
	assert.Equal(t, "My RepRap", st.MachineName)
	assert.Equal(t, -1, st.Tool)
	assert.Len(t, st.Heaters, platform.Heaters)
	assert.Len(t, st.Active, platform.Heaters)
	assert.Len(t, st.Pos, platform.Axes)
	assert.Equal(t, 0.0, st.FractionPrinted)
}

func TestStatusReflectsSetpoints(t *testing.T) {
	r, web, _, _ := newMachine(t)

	web.in = []byte("M104 S200\n")
	spinMachine(r, 5)

	st := r.Status()
	assert.Equal(t, 200.0, st.Active[1])
}

func TestEmergencyStopDropsEverything(t *testing.T) {
	r, web, mgr, p := newMachine(t)

	seedTemp(p, 1, 20)
	web.in = []byte("M104 S200\n")
	spinMachine(r, 5)
	require.Equal(t, uint8(255), p.HeaterPWM(1))

	r.EmergencyStop()
	assert.False(t, mgr.IsOperational())
	assert.Equal(t, "S", r.Status().State)
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
	assert.False(t, r.Move().DrivesEnabled())
}

func TestConfigFileRunsAtStartup(t *testing.T) {
	p, _ := newPlatform(t)
	f := p.MassStorage().OpenFile(platform.SysDir, platform.ConfigFile, true)
	require.NotNil(t, f)
	require.NoError(t, f.WriteString("M92 X100\nM201 X1234\n"))
	require.NoError(t, f.Close())

	r := New(p, safety.New(), &scriptWeb{}, silentHost{})
	r.Init()
	spinMachine(r, 20)

	assert.Equal(t, 100.0, p.DriveStepsPerUnit(0))
	assert.Equal(t, 1234.0, p.Acceleration(0))
}

// TestWebEmergencyStopAbortsBedProbing sends M112 through the web
// front end while G32 is mid-cycle. The cycle holds the dispatcher, so
// the stop only works if the front end acts on it without queueing.
func TestWebEmergencyStopAbortsBedProbing(t *testing.T) {
	p, _ := newPlatform(t)
	mgr := safety.New()

	var r *RepRap
	web := webserver.New(webserver.Config{}, p.MassStorage(), nil, func() { r.EmergencyStop() })
	r = New(p, mgr, web, silentHost{})
	web.SetStatusProvider(r)
	r.Init()
	h := web.Handler()

	sendWeb := func(script string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		target := "/rr_gcode?gcode=" + url.QueryEscape(script)
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}
	readReplies := func() string {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rr_reply", nil))
		return w.Body.String()
	}

	sendWeb("G92 X0 Y0 Z0\nM557 P0 X20 Y20\nM557 P1 X100 Y20\nM557 P2 X60 Y100\n")
	spinMachine(r, 30)
	require.NotContains(t, readReplies(), "Error", "setup script must be accepted")

	require.Equal(t, http.StatusOK, sendWeb("G32").Code)
	spinMachine(r, 4)
	require.True(t, mgr.IsOperational())
	// The first probing phase has raised Z clear of the bed; the cycle
	// is holding the dispatcher and will for many more spins.
	require.Equal(t, 5.0, r.Move().LiveCoordinates()[2])

	require.Equal(t, http.StatusOK, sendWeb("M112").Code)

	// The stop happened during the request itself, not whenever the
	// probing cycle next read its sources.
	assert.False(t, mgr.IsOperational())
	assert.Equal(t, "S", r.Status().State)
	assert.False(t, r.Move().DrivesEnabled())

	// The cycle was abandoned, not resumed: the machine never moves
	// again.
	pos := r.Move().LiveCoordinates()
	spinMachine(r, 100)
	assert.Equal(t, pos, r.Move().LiveCoordinates())
	assert.Equal(t, "S", r.Status().State)
}

func TestStopCutsHeatAndMotors(t *testing.T) {
	r, web, _, p := newMachine(t)

	seedTemp(p, 1, 20)
	web.in = []byte("M104 S200\n")
	r.Start()
	spinMachine(r, 5)
	require.Equal(t, uint8(255), p.HeaterPWM(1))

	r.Stop()
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
	assert.False(t, r.Move().DrivesEnabled())
}
