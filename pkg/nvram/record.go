// Persistent machine parameters
//
// Everything that survives a power cycle lives in one contiguous
// record written as a single block: network identity, Z-probe setup,
// and the per-heater PID/thermistor records. A magic value guards the
// layout; a mismatch on boot means "use defaults in memory" and never
// writes back on its own.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package nvram

import (
	"github.com/chewxy/math32"
)

// Magic values. Change only on layout change.
const (
	RecordMagic uint32 = 0x52524631 // "RRF1"
	ResetMagic  uint16 = 0x7D5A
)

// Heaters is the number of heater channels the record carries.
// Heater 0 is the bed.
const Heaters = 4

// AbsZero is absolute zero in Celsius, the anchor of the beta equation.
const AbsZero = -273.15

// PidParameters holds one heater's control gains and thermistor model.
// ThermistorInfR is kept consistent with the R25/beta pair: use
// SetThermistorR25AndBeta to change them together.
type PidParameters struct {
	KP       float32
	KI       float32
	KD       float32
	KT       float32
	KS       float32
	FullBand float32
	PidMin   float32
	PidMax   float32

	ThermistorBeta    float32
	ThermistorInfR    float32
	ThermistorSeriesR float32

	AdcLowOffset  int8
	AdcHighOffset int8
}

// SetThermistorR25AndBeta sets the thermistor model from its R at 25C
// and beta, recomputing the resistance at infinite temperature.
func (p *PidParameters) SetThermistorR25AndBeta(r25, beta float32) {
	p.ThermistorInfR = r25 * math32.Exp(-beta/(25.0-AbsZero))
	p.ThermistorBeta = beta
}

// ThermistorR25 returns the thermistor resistance at 25C implied by
// the stored Rinf and beta.
func (p *PidParameters) ThermistorR25() float32 {
	return p.ThermistorInfR * math32.Exp(p.ThermistorBeta/(25.0-AbsZero))
}

// UsePID reports whether the heater runs PID rather than bang-bang.
func (p *PidParameters) UsePID() bool {
	return p.KP >= 0
}

// ProbeType selects the active Z-probe variant.
type ProbeType uint8

const (
	ProbeSwitch      ProbeType = 0
	ProbeIR          ProbeType = 1
	ProbeModulatedIR ProbeType = 2
	ProbeAlternate   ProbeType = 3
)

// DrivesModulation reports whether the tick sampler drives the
// modulation pin for this probe type. Types 0 to 2 share the output;
// only the alternate probe leaves it alone.
func (t ProbeType) DrivesModulation() bool {
	return t <= ProbeModulatedIR
}

// ZProbeParameters is one probe variant's calibration.
type ZProbeParameters struct {
	// AdcValue is the reading at which the probe is considered
	// triggered.
	AdcValue int32

	// Height is the nozzle height above the bed when the probe
	// triggers, at the calibration temperature.
	Height float32

	// DiveHeight is the Z from which a probing descent starts.
	DiveHeight float32

	// CalibTemperature and TemperatureCoefficient model trigger-height
	// drift with bed temperature.
	CalibTemperature       float32
	TemperatureCoefficient float32
}

// StopHeight returns the trigger height corrected for the current bed
// temperature.
func (z *ZProbeParameters) StopHeight(temperature float32) float32 {
	return z.Height + z.TemperatureCoefficient*(temperature-z.CalibTemperature)
}

// Record is the complete persistent parameter block.
type Record struct {
	Magic         uint32
	Compatibility uint8

	IPAddress  [4]byte
	NetMask    [4]byte
	Gateway    [4]byte
	MacAddress [6]byte

	ZProbeType    uint8
	ZProbeChannel int8
	ZProbeAxes    uint8

	SwitchProbe    ZProbeParameters
	IRProbe        ZProbeParameters
	AlternateProbe ZProbeParameters

	PidParams [Heaters]PidParameters
}

// ProbeParameters returns the parameter set selected by the probe-type
// tag. The three variants coexist so switching probe types does not
// lose calibration.
func (r *Record) ProbeParameters() *ZProbeParameters {
	switch ProbeType(r.ZProbeType) {
	case ProbeIR, ProbeModulatedIR:
		return &r.IRProbe
	case ProbeAlternate:
		return &r.AlternateProbe
	default:
		return &r.SwitchProbe
	}
}

// SetDefaults re-initializes the record in memory.
func (r *Record) SetDefaults() {
	*r = Record{Magic: RecordMagic}

	r.IPAddress = [4]byte{192, 168, 1, 10}
	r.NetMask = [4]byte{255, 255, 255, 0}
	r.Gateway = [4]byte{192, 168, 1, 1}
	r.MacAddress = [6]byte{0xBE, 0xEF, 0xDE, 0xAD, 0xFE, 0xED}

	r.ZProbeType = uint8(ProbeSwitch)
	r.ZProbeChannel = 0
	r.ZProbeAxes = 1<<0 | 1<<1 // X and Y by default

	defaultProbe := ZProbeParameters{
		AdcValue:         500,
		Height:           1.2,
		DiveHeight:       5.0,
		CalibTemperature: 25.0,
	}
	r.SwitchProbe = defaultProbe
	r.IRProbe = defaultProbe
	r.AlternateProbe = defaultProbe

	// Heater 0 is the bed: slow thermal mass, full-range output.
	bed := PidParameters{
		KP:                -1, // bang-bang
		KI:                0,
		KD:                0,
		KT:                2.7,
		KS:                1.0,
		FullBand:          5.0,
		PidMin:            0,
		PidMax:            255,
		ThermistorSeriesR: 4700,
	}
	bed.SetThermistorR25AndBeta(10000, 3988)
	r.PidParams[0] = bed

	hot := PidParameters{
		KP:                10.0,
		KI:                0.10,
		KD:                100.0,
		KT:                0.4,
		KS:                1.0,
		FullBand:          150.0,
		PidMin:            10,
		PidMax:            180,
		ThermistorSeriesR: 4700,
	}
	hot.SetThermistorR25AndBeta(100000, 4138)
	for i := 1; i < Heaters; i++ {
		r.PidParams[i] = hot
	}
}

// ResetCause mirrors the hardware reset-status register: why the last
// boot happened at all.
type ResetCause uint8

const (
	CausePowerUp ResetCause = iota
	CauseBackup
	CauseWatchdog
	CauseSoftware
	CauseExternal
)

func (c ResetCause) String() string {
	switch c {
	case CausePowerUp:
		return "power up"
	case CauseBackup:
		return "backup"
	case CauseWatchdog:
		return "watchdog"
	case CauseSoftware:
		return "software"
	case CauseExternal:
		return "external"
	default:
		return "?"
	}
}

// Software reset reason bits. The low nibble holds the index of the
// module that was spinning; the upper bits record what the main loop
// was stuck on. ReasonUser marks a reset requested by the host (M999),
// which skips the stuck-output probes.
const (
	ReasonUser uint16 = 0x0000

	ReasonStuckInUsbOutput uint16 = 0x0800
	ReasonStuckInAuxOutput uint16 = 0x1000
	ReasonStuckInNetwork   uint16 = 0x2000

	ReasonModuleMask uint16 = 0x000F
)

// SoftwareResetData is written just before a software-triggered reset
// so the next boot can report why it happened.
type SoftwareResetData struct {
	Magic        uint16
	ResetReason  uint16
	NeverUsedRAM uint32
}
