// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package reprap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

func newPlatform(t *testing.T) (*platform.Platform, *platform.SimBoard) {
	t.Helper()
	backend, err := nvram.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	profile := platform.DefaultProfile()
	profile.Storage.Root = t.TempDir()
	board := platform.NewSimBoard()
	p := platform.New(board, profile, nvram.NewStore(backend))
	require.NoError(t, p.Init())
	return p, board
}

// adcFor inverts the thermistor model: the ADC reading that makes a
// heater report the given temperature.
func adcFor(temp float64, pp *nvram.PidParameters) int32 {
	res := float64(pp.ThermistorInfR) * math.Exp(float64(pp.ThermistorBeta)/(temp-float64(nvram.AbsZero)))
	reading := res * float64(platform.AdcRange+1) / (float64(pp.ThermistorSeriesR) + res)
	return int32(reading + 0.5)
}

func seedTemp(p *platform.Platform, heater int, temp float64) {
	pp := &p.NVData().Data().PidParams[heater]
	p.ThermistorFilter(heater).Init(adcFor(temp, pp))
}

func TestSeededTemperatureRoundTrips(t *testing.T) {
	p, _ := newPlatform(t)
	seedTemp(p, 0, 60)
	assert.InDelta(t, 60, p.GetTemperature(0), 1.0)
	seedTemp(p, 1, 200)
	assert.InDelta(t, 200, p.GetTemperature(1), 1.0)
}

func TestBangBangBedSwitchesAroundSetpoint(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(0, 60)
	h.Activate(0)

	seedTemp(p, 0, 20)
	h.Spin()
	assert.Equal(t, uint8(255), p.HeaterPWM(0))

	seedTemp(p, 0, 70)
	h.Spin()
	assert.Equal(t, uint8(0), p.HeaterPWM(0))
}

func TestPIDHotEndRampsThenSettles(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(1, 200)
	h.Activate(1)

	// Far below the band: full power.
	seedTemp(p, 1, 20)
	h.Spin()
	assert.Equal(t, uint8(255), p.HeaterPWM(1))

	// Inside the band the derivative kick from the jump suppresses the
	// output first, then the loop settles to a partial duty cycle.
	seedTemp(p, 1, 195)
	h.Spin()
	h.Spin()
	pwm := p.HeaterPWM(1)
	assert.Greater(t, pwm, uint8(0))
	assert.Less(t, pwm, uint8(255))
}

func TestOvershootCutsPower(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(1, 100)
	h.Activate(1)

	seedTemp(p, 1, 255)
	h.Spin()
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
}

func TestOffHeaterStaysCold(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(1, 200)
	seedTemp(p, 1, 20)
	h.Spin()
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
}

func TestDisconnectedSensorNeverHeats(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	// No seeded readings: the filter is invalid and the temperature
	// reads as absolute zero.
	h.SetActiveTemperature(1, 200)
	h.Activate(1)
	h.Spin()
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
}

func TestFaultedHeaterIsLeftAlone(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	p.HeaterFault(1)
	h.SetActiveTemperature(1, 200)
	h.Activate(1)
	seedTemp(p, 1, 20)
	h.Spin()
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
}

func TestHeaterAtSetTemperature(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(0, 60)
	h.Activate(0)

	seedTemp(p, 0, 40)
	assert.False(t, h.HeaterAtSetTemperature(0))
	assert.False(t, h.AllHeatersAtSetTemperatures())

	seedTemp(p, 0, 59)
	assert.True(t, h.HeaterAtSetTemperature(0))
	assert.True(t, h.AllHeatersAtSetTemperatures())

	// An off heater always qualifies.
	assert.True(t, h.HeaterAtSetTemperature(1))
}

func TestStandbyAllDropsEveryHeater(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(0, 60)
	h.Activate(0)
	h.SetActiveTemperature(1, 200)
	h.Activate(1)
	seedTemp(p, 0, 20)
	seedTemp(p, 1, 20)
	h.Spin()
	require.Equal(t, uint8(255), p.HeaterPWM(0))

	h.StandbyAll()
	assert.Equal(t, uint8(0), p.HeaterPWM(0))
	assert.Equal(t, uint8(0), p.HeaterPWM(1))

	// Standby setpoints default to cold, so the next spin keeps them off.
	h.Spin()
	assert.Equal(t, uint8(0), p.HeaterPWM(0))
	assert.Equal(t, uint8(0), p.HeaterPWM(1))
}

func TestStandbySetpointIsHonoured(t *testing.T) {
	p, _ := newPlatform(t)
	h := NewHeat(p)
	h.Init()

	h.SetActiveTemperature(1, 230)
	h.SetStandbyTemperature(1, 180)
	h.Standby(1)
	assert.Equal(t, 180.0, h.StandbyTemperature(1))

	seedTemp(p, 1, 20)
	h.Spin()
	// 160 below the standby target: outside the band, full power.
	assert.Equal(t, uint8(255), p.HeaterPWM(1))
}
