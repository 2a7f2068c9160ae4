// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/filter"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
)

func newTestPlatform(t *testing.T) (*Platform, *SimBoard) {
	t.Helper()
	backend, err := nvram.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	profile := DefaultProfile()
	profile.Storage.Root = t.TempDir()
	board := NewSimBoard()
	p := New(board, profile, nvram.NewStore(backend))
	require.NoError(t, p.Init())
	return p, board
}

func fillThermistor(p *Platform, heater int, sample int32) {
	f := p.ThermistorFilter(heater)
	for i := 0; i < filter.ThermistorReadings; i++ {
		f.Add(sample)
	}
}

func fillProbe(p *Platform, onSample, offSample int32) {
	for i := 0; i < filter.ZProbeReadings; i++ {
		p.ZProbeOnFilter().Add(onSample)
		p.ZProbeOffFilter().Add(offSample)
	}
}

func TestTemperatureFromKnownResistance(t *testing.T) {
	p, _ := newTestPlatform(t)

	// Hot end defaults: 100k at 25C, beta 4138, 4.7k series resistor.
	// R = 100k puts the divider at 4096*100000/104700 counts.
	fillThermistor(p, 1, 3912)
	assert.InDelta(t, 25.0, p.GetTemperature(1), 1.0)
}

func TestTemperatureBeforeFilterWarmsUp(t *testing.T) {
	p, _ := newTestPlatform(t)
	assert.Equal(t, float64(nvram.AbsZero), p.GetTemperature(0))
}

func TestTemperatureDisconnectedReadsAbsoluteZero(t *testing.T) {
	p, _ := newTestPlatform(t)
	fillThermistor(p, 1, AdcRange)
	assert.Equal(t, float64(nvram.AbsZero), p.GetTemperature(1))
}

func TestTemperatureShortedSensor(t *testing.T) {
	p, _ := newTestPlatform(t)
	fillThermistor(p, 1, 0)
	assert.Equal(t, float64(ShortedTemperature), p.GetTemperature(1))
}

func TestOverheatSumBelowRoomTemperatureSum(t *testing.T) {
	p, _ := newTestPlatform(t)

	roomSum := int32(3912) * int32(filter.ThermistorReadings)
	for h := 0; h < Heaters; h++ {
		assert.Greater(t, p.OverheatSum(h), int32(0))
		assert.Less(t, p.OverheatSum(h), roomSum,
			"a hot thermistor must read below the room-temperature sum")
	}
	assert.Equal(t, AdcDisconnected*int32(filter.ThermistorReadings), p.MaxSum())
}

func TestHeaterFaultLatches(t *testing.T) {
	p, board := newTestPlatform(t)

	p.SetHeater(1, 0.5)
	assert.Equal(t, uint8(128), board.HeaterPWM(1))

	p.HeaterFault(1)
	assert.Equal(t, uint8(0), board.HeaterPWM(1))
	assert.True(t, p.HeaterFaulted(1))
	assert.NotZero(t, p.ErrorCodeBits(false)&ErrorBadTemp)

	// Nobody can turn it back on while the fault is latched.
	p.SetHeater(1, 1.0)
	assert.Equal(t, uint8(0), board.HeaterPWM(1))

	p.ResetHeaterFault(1)
	assert.False(t, p.HeaterFaulted(1))
	assert.Zero(t, p.ErrorCodeBits(false)&ErrorBadTemp)
	p.SetHeater(1, 1.0)
	assert.Equal(t, uint8(255), board.HeaterPWM(1))
}

func TestZProbeReadings(t *testing.T) {
	p, _ := newTestPlatform(t)

	p.NVData().Data().ZProbeType = uint8(nvram.ProbeIR)
	fillProbe(p, 400, 0)
	assert.Equal(t, 50, p.ZProbe())

	p.NVData().Data().ZProbeType = uint8(nvram.ProbeModulatedIR)
	fillProbe(p, 500, 100)
	assert.Equal(t, 100, p.ZProbe())
	assert.Equal(t, 125, p.ZProbeSecondaryValue())

	// The modulated reading is a difference and may go negative.
	fillProbe(p, 100, 500)
	assert.Equal(t, -100, p.ZProbe())

	p.NVData().Data().ZProbeType = uint8(nvram.ProbeSwitch)
	assert.Equal(t, 0, p.ZProbe())
}

func TestStoppedUsesProbeWhileProbing(t *testing.T) {
	p, board := newTestPlatform(t)

	p.NVData().Data().ZProbeType = uint8(nvram.ProbeIR)
	p.NVData().Data().ProbeParameters().AdcValue = 50
	p.SetZProbing(true)

	fillProbe(p, 400, 0) // reading 50, at threshold
	assert.Equal(t, EndStopLowHit, p.Stopped(2))

	fillProbe(p, 368, 0) // reading 46, inside the 90% band
	assert.Equal(t, EndStopNearLow, p.Stopped(2))

	fillProbe(p, 80, 0) // reading 10, clear
	assert.Equal(t, EndStopNotStopped, p.Stopped(2))

	// Off the probe path, the plain endstop is consulted.
	p.SetZProbing(false)
	board.SetEndstop(2, true)
	assert.Equal(t, EndStopLowHit, p.Stopped(2))
	board.SetEndstop(0, true)
	assert.Equal(t, EndStopLowHit, p.Stopped(0))
}

func TestFanValueAndInversion(t *testing.T) {
	p, board := newTestPlatform(t)

	p.SetFanValue(200)
	assert.Equal(t, uint8(200), board.FanPWM())
	assert.Equal(t, uint8(200), p.FanValue())

	p.SetFanInverted(true)
	assert.Equal(t, uint8(55), board.FanPWM())
	assert.Equal(t, uint8(200), p.FanValue(), "reported value stays un-inverted")

	p.SetFanInverted(false)
	assert.Equal(t, uint8(200), board.FanPWM())
}

func TestFanRPM(t *testing.T) {
	p, board := newTestPlatform(t)

	assert.Zero(t, p.FanRPM(), "no pulses yet")

	// 32 edges spread over 320ms, two edges per revolution.
	base := p.TimeMicros()
	for i := 1; i <= 32; i++ {
		board.SimulateFanPulse(base + uint64(i)*10000)
	}
	assert.InDelta(t, 3000.0, p.FanRPM(), 100.0)
}

type captureSink struct {
	bytes.Buffer
	room int // 0 means unlimited
}

func (c *captureSink) CanWrite() int {
	if c.room == 0 {
		return 1 << 16
	}
	return c.room
}

func (c *captureSink) Write(p []byte) (int, error) {
	return c.Buffer.Write(p)
}

func TestGenericMessageFansOut(t *testing.T) {
	p, _ := newTestPlatform(t)
	host := &captureSink{}
	web := &captureSink{}
	telnet := &captureSink{}
	p.SetHostSink(host)
	p.SetHTTPSink(web)
	p.SetTelnetSink(telnet)

	p.Message(GenericMessage, "hello\n")
	p.Spin()

	assert.Equal(t, "hello\n", host.String())
	assert.Equal(t, "hello\n", web.String())
	assert.Equal(t, "hello\n", telnet.String())
}

func TestHostMessageIndent(t *testing.T) {
	p, _ := newTestPlatform(t)
	host := &captureSink{}
	p.SetHostSink(host)

	p.PushMessageIndent()
	p.Message(HostMessage, "inside macro\n")
	p.PopMessageIndent()
	p.Message(HostMessage, "after\n")
	p.Spin()

	assert.Equal(t, "  inside macro\nafter\n", host.String())
}

func TestDrainRespectsSinkBackpressure(t *testing.T) {
	p, _ := newTestPlatform(t)
	host := &captureSink{room: 3}
	p.SetHostSink(host)

	p.Message(HostMessage, "abcdef")
	p.Spin()
	assert.Equal(t, "abc", host.String(), "one spin moves at most CanWrite bytes")
	p.Spin()
	assert.Equal(t, "abcdef", host.String())

	used, _, _, _ := p.pool.Stats()
	assert.Zero(t, used, "fully drained messages return their buffers")
}

func TestSoftwareResetRecordsReason(t *testing.T) {
	p, _ := newTestPlatform(t)
	called := false
	p.SetResetHook(func() { called = true })

	p.SoftwareReset(uint16(ModuleGCodes))

	assert.True(t, called)
	rec, ok := p.NVData().ReadResetData()
	require.True(t, ok)
	assert.Equal(t, ModuleGCodes, Module(rec.ResetReason&nvram.ReasonModuleMask))
}

func TestMassStorageRoundTrip(t *testing.T) {
	p, _ := newTestPlatform(t)
	ms := p.MassStorage()

	assert.Equal(t, "0:/gcodes/part.g", ms.CombineName(GCodeDir, "part.g"))
	assert.Equal(t, "0:/sys/homeall.g", ms.CombineName("0:/sys", "homeall.g"))
	assert.Equal(t, "0:/gcodes/part.g", ms.CombineName(SysDir, "0:/gcodes/part.g"),
		"a name with a volume prefix wins over the directory")

	out := ms.OpenFile(GCodeDir, "test.g", true)
	require.NotNil(t, out)
	require.NoError(t, out.WriteString("G28\nG1 X10\n"))
	require.NoError(t, out.Close())

	assert.True(t, ms.FileExists(GCodeDir, "test.g"))
	names, err := ms.FileNames(GCodeDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"test.g"}, names)

	in := ms.OpenFile(GCodeDir, "test.g", false)
	require.NotNil(t, in)
	assert.Equal(t, int64(len("G28\nG1 X10\n")), in.Length())
	var got []byte
	for {
		b, ok := in.Read()
		if !ok {
			break
		}
		got = append(got, b)
	}
	assert.Equal(t, "G28\nG1 X10\n", string(got))
	assert.InDelta(t, 1.0, in.FractionRead(), 0.001)
	require.NoError(t, in.Close())

	require.NoError(t, ms.Delete(GCodeDir, "test.g"))
	assert.False(t, ms.FileExists(GCodeDir, "test.g"))
	assert.Nil(t, ms.OpenFile(GCodeDir, "test.g", false),
		"opening a missing file returns nil, callers report it")
}

func TestFileSeekRestartsRead(t *testing.T) {
	p, _ := newTestPlatform(t)
	ms := p.MassStorage()

	out := ms.OpenFile(GCodeDir, "seek.g", true)
	require.NotNil(t, out)
	require.NoError(t, out.WriteString("0123456789"))
	require.NoError(t, out.Close())

	in := ms.OpenFile(GCodeDir, "seek.g", false)
	require.NotNil(t, in)
	for i := 0; i < 5; i++ {
		in.Read()
	}
	require.NoError(t, in.Seek(2))
	b, ok := in.Read()
	require.True(t, ok)
	assert.Equal(t, byte('2'), b)
	assert.Equal(t, int64(3), in.Position())
	require.NoError(t, in.Close())
}
