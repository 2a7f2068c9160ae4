// Temperature controller
//
// One control slice per heater per spin: read the filtered
// temperature, compare against the setpoint for the heater's state
// (off, standby or active), and drive the platform PWM either
// bang-bang or PID depending on the stored gains. The bed ships as
// bang-bang (KP < 0) and the hot ends as PID; M301/M304 can flip
// either at runtime.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package reprap

import (
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

// tempCloseEnough is the band inside which a heater counts as at
// temperature for the blocking M109/M190 waits.
const tempCloseEnough = 2.5

type heaterStatus uint8

const (
	heaterOff heaterStatus = iota
	heaterStandby
	heaterActive
)

// Heat runs the temperature loops for every heater.
type Heat struct {
	platform *platform.Platform
	logger   *log.Logger

	active  [platform.Heaters]float64
	standby [platform.Heaters]float64
	status  [platform.Heaters]heaterStatus

	iState   [platform.Heaters]float64
	lastTemp [platform.Heaters]float64
}

// NewHeat creates the controller. Init must be called before Spin.
func NewHeat(p *platform.Platform) *Heat {
	return &Heat{
		platform: p,
		logger:   log.GetLogger("heat"),
	}
}

// Init resets all setpoints and switches every heater off.
func (h *Heat) Init() {
	for i := 0; i < platform.Heaters; i++ {
		h.active[i] = 0
		h.standby[i] = 0
		h.status[i] = heaterOff
		h.iState[i] = 0
		h.lastTemp[i] = h.platform.GetTemperature(i)
		h.platform.SetHeater(i, 0)
	}
}

// Exit cuts all heater power.
func (h *Heat) Exit() {
	for i := 0; i < platform.Heaters; i++ {
		h.status[i] = heaterOff
		h.platform.SetHeater(i, 0)
	}
}

// Spin runs one control slice for every heater.
func (h *Heat) Spin() {
	for i := 0; i < platform.Heaters; i++ {
		h.control(i)
	}
}

func (h *Heat) targetOf(heater int) float64 {
	switch h.status[heater] {
	case heaterActive:
		return h.active[heater]
	case heaterStandby:
		return h.standby[heater]
	default:
		return 0
	}
}

func (h *Heat) control(heater int) {
	p := h.platform
	if p.HeaterFaulted(heater) {
		return
	}

	temp := p.GetTemperature(heater)
	target := h.targetOf(heater)

	// A disconnected or shorted sensor must never leave the heater on.
	if temp <= float64(nvram.AbsZero) || temp >= float64(platform.ShortedTemperature) {
		h.iState[heater] = 0
		p.SetHeater(heater, 0)
		return
	}
	if target <= 0 {
		h.iState[heater] = 0
		h.lastTemp[heater] = temp
		p.SetHeater(heater, 0)
		return
	}

	pp := &p.NVData().Data().PidParams[heater]
	err := target - temp

	if !pp.UsePID() {
		if err > 0 {
			p.SetHeater(heater, float64(pp.KS))
		} else {
			p.SetHeater(heater, 0)
		}
		h.lastTemp[heater] = temp
		return
	}

	switch {
	case err < -float64(pp.FullBand):
		h.iState[heater] = 0
		p.SetHeater(heater, 0)
	case err > float64(pp.FullBand):
		h.iState[heater] = 0
		p.SetHeater(heater, float64(pp.KS))
	default:
		h.iState[heater] += err * float64(pp.KI)
		if h.iState[heater] < float64(pp.PidMin) {
			h.iState[heater] = float64(pp.PidMin)
		} else if h.iState[heater] > float64(pp.PidMax) {
			h.iState[heater] = float64(pp.PidMax)
		}
		dTerm := float64(pp.KD) * (temp - h.lastTemp[heater])
		result := float64(pp.KP)*err + h.iState[heater] - dTerm
		if result < 0 {
			result = 0
		} else if result > 255 {
			result = 255
		}
		p.SetHeater(heater, result/255.0)
	}
	h.lastTemp[heater] = temp
}

// SetActiveTemperature sets a heater's active setpoint.
func (h *Heat) SetActiveTemperature(heater int, t float64) {
	if heater < 0 || heater >= platform.Heaters {
		return
	}
	h.active[heater] = t
}

// ActiveTemperature reports a heater's active setpoint.
func (h *Heat) ActiveTemperature(heater int) float64 {
	if heater < 0 || heater >= platform.Heaters {
		return 0
	}
	return h.active[heater]
}

// SetStandbyTemperature sets a heater's standby setpoint.
func (h *Heat) SetStandbyTemperature(heater int, t float64) {
	if heater < 0 || heater >= platform.Heaters {
		return
	}
	h.standby[heater] = t
}

// StandbyTemperature reports a heater's standby setpoint.
func (h *Heat) StandbyTemperature(heater int) float64 {
	if heater < 0 || heater >= platform.Heaters {
		return 0
	}
	return h.standby[heater]
}

// Activate drives a heater to its active setpoint.
func (h *Heat) Activate(heater int) {
	if heater < 0 || heater >= platform.Heaters {
		return
	}
	h.status[heater] = heaterActive
}

// Standby drops a heater to its standby setpoint.
func (h *Heat) Standby(heater int) {
	if heater < 0 || heater >= platform.Heaters {
		return
	}
	h.status[heater] = heaterStandby
}

// StandbyAll drops every heater to standby. The safety manager calls
// this on emergency stop; standby setpoints default to cold.
func (h *Heat) StandbyAll() {
	for i := 0; i < platform.Heaters; i++ {
		h.status[i] = heaterStandby
		h.platform.SetHeater(i, 0)
	}
}

// HeaterAtSetTemperature reports whether a heater has settled close
// enough to its current setpoint. An off heater always qualifies.
func (h *Heat) HeaterAtSetTemperature(heater int) bool {
	if heater < 0 || heater >= platform.Heaters {
		return true
	}
	target := h.targetOf(heater)
	if target <= 0 {
		return true
	}
	diff := h.platform.GetTemperature(heater) - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= tempCloseEnough
}

// AllHeatersAtSetTemperatures reports whether every heater has settled.
func (h *Heat) AllHeatersAtSetTemperatures() bool {
	for i := 0; i < platform.Heaters; i++ {
		if !h.HeaterAtSetTemperature(i) {
			return false
		}
	}
	return true
}

// Diagnostics reports controller state for M122.
func (h *Heat) Diagnostics() {
	h.platform.Message(platform.GenericMessage, "Heat diagnostics:\n")
	for i := 0; i < platform.Heaters; i++ {
		h.platform.MessageF(platform.GenericMessage,
			"Heater %d: %.1fC, active %.1f, standby %.1f, status %d\n",
			i, h.platform.GetTemperature(i), h.active[i], h.standby[i], h.status[i])
	}
}
