// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"sync"
	"sync/atomic"
)

// Board is the hardware the platform drives: ADC sequencing, heater
// and fan PWM, the probe modulation pin, endstop inputs and the ATX
// relay. Implementations must make every call safe from the tick
// goroutine.
type Board interface {
	// StartConversion begins an ADC conversion on the channel. The
	// result is available by the next tick.
	StartConversion(channel int)

	// ConversionResult returns the last completed conversion on the
	// channel, in the 0..AdcRange domain.
	ConversionResult(channel int) int32

	// SetHeaterPWM drives a heater output, 0..255.
	SetHeaterPWM(heater int, pwm uint8)

	// SetProbeModulation drives the Z-probe emitter pin.
	SetProbeModulation(on bool)

	// SetFanPWM drives the cooling fan output, 0..255.
	SetFanPWM(value uint8)

	// SetAtxPower switches the PS_ON relay.
	SetAtxPower(on bool)

	// EndstopHit reads the raw endstop input for an axis.
	EndstopHit(axis int) bool

	// SetFanTachoHandler registers the edge-interrupt callback. The
	// handler runs in interrupt context: counters only.
	SetFanTachoHandler(fn func(nowMicros uint64))
}

// SimBoard is the in-memory board used by the hosted binary and the
// tests. ADC channels return whatever was last injected.
type SimBoard struct {
	mu         sync.Mutex
	adc        map[int]int32
	endstops   map[int]bool
	modulation bool

	heaterPWM [8]atomic.Uint32
	fanPWM    atomic.Uint32
	atxPower  atomic.Bool

	tachoHandler func(uint64)

	// OnModulation, when set, is called on every modulation-pin edge
	// so a test can model the IR dark/lit readings.
	OnModulation func(on bool)
}

// NewSimBoard creates a simulated board with all inputs at rest.
func NewSimBoard() *SimBoard {
	return &SimBoard{
		adc:      make(map[int]int32),
		endstops: make(map[int]bool),
	}
}

// SetADC injects a conversion result for a channel.
func (b *SimBoard) SetADC(channel int, value int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adc[channel] = value
}

// SetEndstop injects an endstop state.
func (b *SimBoard) SetEndstop(axis int, hit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endstops[axis] = hit
}

// HeaterPWM reports the last PWM written to a heater.
func (b *SimBoard) HeaterPWM(heater int) uint8 {
	if heater < 0 || heater >= len(b.heaterPWM) {
		return 0
	}
	return uint8(b.heaterPWM[heater].Load())
}

// FanPWM reports the last fan PWM written.
func (b *SimBoard) FanPWM() uint8 {
	return uint8(b.fanPWM.Load())
}

// AtxPower reports the PS_ON state.
func (b *SimBoard) AtxPower() bool {
	return b.atxPower.Load()
}

// Modulation reports the probe emitter state.
func (b *SimBoard) Modulation() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modulation
}

// SimulateFanPulse delivers one tacho edge to the registered handler.
func (b *SimBoard) SimulateFanPulse(nowMicros uint64) {
	b.mu.Lock()
	fn := b.tachoHandler
	b.mu.Unlock()
	if fn != nil {
		fn(nowMicros)
	}
}

// Board interface

func (b *SimBoard) StartConversion(channel int) {}

func (b *SimBoard) ConversionResult(channel int) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adc[channel]
}

func (b *SimBoard) SetHeaterPWM(heater int, pwm uint8) {
	if heater >= 0 && heater < len(b.heaterPWM) {
		b.heaterPWM[heater].Store(uint32(pwm))
	}
}

func (b *SimBoard) SetProbeModulation(on bool) {
	b.mu.Lock()
	b.modulation = on
	fn := b.OnModulation
	b.mu.Unlock()
	if fn != nil {
		fn(on)
	}
}

func (b *SimBoard) SetFanPWM(value uint8) {
	b.fanPWM.Store(uint32(value))
}

func (b *SimBoard) SetAtxPower(on bool) {
	b.atxPower.Store(on)
}

func (b *SimBoard) EndstopHit(axis int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endstops[axis]
}

func (b *SimBoard) SetFanTachoHandler(fn func(uint64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tachoHandler = fn
}
