// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import "sync/atomic"

// fanTachoPulses is how many tacho edges are averaged per RPM sample.
const fanTachoPulses = 32

// fanRPMStaleMicros invalidates a reading the fan stopped producing.
const fanRPMStaleMicros = 3 * 1000 * 1000

// fanCounters holds the tacho state. The pulse handler is the single
// writer; RPM queries only load.
type fanCounters struct {
	pulseCount    atomic.Uint32
	windowStart   atomic.Uint64 // µs timestamp of the current window
	lastWindowEnd atomic.Uint64 // µs timestamp of the last completed window
	interval      atomic.Uint64 // µs spanned by the last completed window

	value    atomic.Uint32 // last commanded PWM 0..255
	inverted atomic.Bool
}

func (p *Platform) initFan() {
	p.fan.windowStart.Store(p.TimeMicros())
	p.board.SetFanTachoHandler(p.fanPulse)
}

// fanPulse is called on every tacho edge. Two edges per revolution.
func (p *Platform) fanPulse(nowMicros uint64) {
	n := p.fan.pulseCount.Add(1)
	if n < fanTachoPulses {
		return
	}
	start := p.fan.windowStart.Load()
	p.fan.interval.Store(nowMicros - start)
	p.fan.lastWindowEnd.Store(nowMicros)
	p.fan.windowStart.Store(nowMicros)
	p.fan.pulseCount.Store(0)
}

// SetFanValue drives the cooling fan with an M106-style 0..255 value,
// honouring the inversion flag for fans wired active-low.
func (p *Platform) SetFanValue(value uint8) {
	p.fan.value.Store(uint32(value))
	if p.fan.inverted.Load() {
		value = 255 - value
	}
	p.board.SetFanPWM(value)
}

// FanValue reports the last commanded (un-inverted) fan value.
func (p *Platform) FanValue() uint8 {
	return uint8(p.fan.value.Load())
}

// SetFanInverted selects active-low fan drive and reapplies the
// current value so the output flips immediately.
func (p *Platform) SetFanInverted(inverted bool) {
	p.fan.inverted.Store(inverted)
	p.SetFanValue(p.FanValue())
}

// FanRPM converts the last tacho window to revolutions per minute. A
// window older than three seconds, or none at all, reads as zero.
func (p *Platform) FanRPM() float64 {
	interval := p.fan.interval.Load()
	if interval == 0 {
		return 0
	}
	now := p.TimeMicros()
	end := p.fan.lastWindowEnd.Load()
	if now > end && now-end > fanRPMStaleMicros {
		return 0
	}
	// fanTachoPulses edges at two edges per revolution over interval µs.
	return float64(fanTachoPulses) * 30_000_000 / float64(interval)
}
