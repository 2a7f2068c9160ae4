// Package platform is the hardware facade of the firmware core. It
// owns the board, the non-volatile parameter store, the thermistor
// filters and overheat thresholds, the Z-probe, the fan, mass storage
// and the message router. Everything above it (the G-code machinery,
// the external motion planner and heater controller) talks to hardware
// only through here.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/buffer"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/filter"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
)

// Machine shape. Axes are X, Y, Z; the remaining drives are
// extruders.
const (
	Axes    = 3
	Drives  = 4
	Heaters = nvram.Heaters
)

// ADC domain. Conversions are 12 bit; a reading pinned near full
// scale means the thermistor is disconnected.
const (
	AdcRange        int32 = 4095
	AdcDisconnected int32 = AdcRange - 3
)

// Temperature bounds used for the precomputed cutoff and for reporting
// a shorted sensor.
const (
	BadHighTemperature float32 = 285.0
	ShortedTemperature float32 = 2000.0
)

// Latched error bits, surfaced by M122 and cleared by M562.
const (
	ErrorBadTemp uint32 = 1 << iota
	ErrorOutputStarvation
)

// EndStopHit describes an endstop query result.
type EndStopHit int

const (
	EndStopNotStopped EndStopHit = iota
	EndStopLowHit
	EndStopHighHit
	EndStopNearLow
)

// Platform is the facade instance.
type Platform struct {
	logger  *log.Logger
	board   Board
	profile *Profile
	nv      *nvram.Store

	startTime time.Time

	// Messaging
	pool          *buffer.Pool
	dests         [destCount]destination
	debugWriter   io.Writer
	messageIndent int

	// Thermal
	thermistorFilters [Heaters]*filter.Averaging
	zProbeOnFilter    *filter.Averaging
	zProbeOffFilter   *filter.Averaging
	overheatSums      [Heaters]int32
	heaterPWM         [Heaters]atomic.Uint32
	heaterFaults      atomic.Uint32
	errorCodeBits     atomic.Uint32

	zProbing atomic.Bool

	// Motion parameters, set from the profile and mutated by config
	// G-codes. Main-loop only.
	axisMinima        [Axes]float64
	axisMaxima        [Axes]float64
	homeFeedrates     [Axes]float64
	maxFeedrates      [Drives]float64
	accelerations     [Drives]float64
	driveStepsPerUnit [Drives]float64
	instantDvs        [Drives]float64
	motorCurrents     [Drives]float64

	fan fanCounters

	storage *MassStorage

	resetCause nvram.ResetCause
	resetHook  func()
}

// New wires a platform over a board and profile. Init must be called
// before use.
func New(board Board, profile *Profile, nv *nvram.Store) *Platform {
	p := &Platform{
		logger:      log.GetLogger("platform"),
		board:       board,
		profile:     profile,
		nv:          nv,
		pool:        buffer.NewPool(buffer.DefaultPoolSize),
		debugWriter: os.Stderr,
		startTime:   time.Now(),
	}
	for i := range p.dests {
		p.dests[i].sink = nullSink{}
	}
	return p
}

// Init loads persistent parameters, seeds the filters and computes the
// integer overheat thresholds the tick uses.
func (p *Platform) Init() error {
	p.nv.Load()

	copy(p.axisMinima[:], p.profile.Axes.Minima)
	copy(p.axisMaxima[:], p.profile.Axes.Maxima)
	copy(p.homeFeedrates[:], p.profile.Axes.HomeFeedrates)
	copy(p.maxFeedrates[:], p.profile.Drives.MaxFeedrates)
	copy(p.accelerations[:], p.profile.Drives.Accelerations)
	copy(p.driveStepsPerUnit[:], p.profile.Drives.StepsPerUnit)
	copy(p.instantDvs[:], p.profile.Drives.InstantDvs)
	copy(p.motorCurrents[:], p.profile.Drives.MotorCurrents)

	for h := 0; h < Heaters; h++ {
		p.thermistorFilters[h] = filter.NewAveraging(filter.ThermistorReadings)
		p.thermistorFilters[h].Init(0)
		p.SetHeater(h, 0)
	}
	p.zProbeOnFilter = filter.NewAveraging(filter.ZProbeReadings)
	p.zProbeOnFilter.Init(0)
	p.zProbeOffFilter = filter.NewAveraging(filter.ZProbeReadings)
	p.zProbeOffFilter.Init(0)

	p.computeOverheatSums()
	p.initFan()

	var err error
	p.storage, err = NewMassStorage(p.profile.Storage.Root)
	if err != nil {
		return err
	}
	return nil
}

// SetResetHook registers the function SoftwareReset calls after the
// reset record is written. The hosted binary re-execs itself.
func (p *Platform) SetResetHook(fn func()) {
	p.resetHook = fn
}

// SetResetCause records why this boot happened, for diagnostics.
func (p *Platform) SetResetCause(c nvram.ResetCause) {
	p.resetCause = c
}

// NVData exposes the persistent parameter store.
func (p *Platform) NVData() *nvram.Store {
	return p.nv
}

// MassStorage exposes the file layer.
func (p *Platform) MassStorage() *MassStorage {
	return p.storage
}

// Time returns milliseconds since boot. Kept as an integer so it does
// not lose resolution the way float seconds do after half an hour.
func (p *Platform) Time() uint64 {
	return uint64(time.Since(p.startTime) / time.Millisecond)
}

// TimeMicros returns microseconds since boot.
func (p *Platform) TimeMicros() uint64 {
	return uint64(time.Since(p.startTime) / time.Microsecond)
}

// Spin drains the output queues. Called once per main-loop pass and
// must never block.
func (p *Platform) Spin() {
	p.drainOutput()
}

// computeOverheatSums converts each heater's danger temperature into
// the filter-sum domain so the tick can compare integers only.
func (p *Platform) computeOverheatSums() {
	for h := 0; h < Heaters; h++ {
		pid := &p.nv.Data().PidParams[h]
		resistance := pid.ThermistorInfR *
			math32.Exp(pid.ThermistorBeta/(BadHighTemperature-nvram.AbsZero))
		adc := float32(AdcRange+1) * resistance / (resistance + pid.ThermistorSeriesR)
		p.overheatSums[h] = int32(adc+0.9) * int32(filter.ThermistorReadings)
	}
}

// RecomputeOverheatSums refreshes the thresholds after M305 changes a
// thermistor model. Main loop only; the tick picks the new values up
// on its next comparison.
func (p *Platform) RecomputeOverheatSums() {
	p.computeOverheatSums()
}

// OverheatSum returns heater h's integer cutoff threshold.
func (p *Platform) OverheatSum(heater int) int32 {
	return p.overheatSums[heater]
}

// MaxSum returns the disconnected-sentinel threshold in the sum
// domain.
func (p *Platform) MaxSum() int32 {
	return AdcDisconnected * int32(filter.ThermistorReadings)
}

// Heater output

// SetHeater drives heater h with power 0..1. A heater with a latched
// fault stays off until ResetHeaterFault, no matter who asks.
func (p *Platform) SetHeater(heater int, power float64) {
	if heater < 0 || heater >= Heaters {
		return
	}
	if power < 0 {
		power = 0
	} else if power > 1 {
		power = 1
	}
	if power > 0 && p.HeaterFaulted(heater) {
		return
	}
	pwm := uint8(power*255 + 0.5)
	p.heaterPWM[heater].Store(uint32(pwm))
	p.board.SetHeaterPWM(heater, pwm)
}

// HeaterPWM reports the last PWM driven to heater h.
func (p *Platform) HeaterPWM(heater int) uint8 {
	if heater < 0 || heater >= Heaters {
		return 0
	}
	return uint8(p.heaterPWM[heater].Load())
}

// HeaterFault force-stops a heater from the tick path and latches the
// fault. Integer work plus one PWM write; safe in interrupt context.
func (p *Platform) HeaterFault(heater int) {
	p.heaterPWM[heater].Store(0)
	p.board.SetHeaterPWM(heater, 0)
	p.heaterFaults.Or(1 << uint(heater))
	p.errorCodeBits.Or(ErrorBadTemp)
}

// HeaterFaulted reports a latched overheat fault.
func (p *Platform) HeaterFaulted(heater int) bool {
	return p.heaterFaults.Load()&(1<<uint(heater)) != 0
}

// ResetHeaterFault clears the latch (M562) so the heater may be
// enabled again. Also re-seeds the filter so a stale dangerous sum
// cannot trip the cutoff before fresh samples arrive.
func (p *Platform) ResetHeaterFault(heater int) {
	if heater < 0 || heater >= Heaters {
		return
	}
	p.heaterFaults.And(^uint32(1 << uint(heater)))
	p.thermistorFilters[heater].Init(0)
	if p.heaterFaults.Load() == 0 {
		p.errorCodeBits.And(^ErrorBadTemp)
	}
}

// AnyHeaterFaulted reports whether any fault is latched.
func (p *Platform) AnyHeaterFaulted() bool {
	return p.heaterFaults.Load() != 0
}

// ErrorCodeBits returns and optionally clears the latched error bits.
func (p *Platform) ErrorCodeBits(clear bool) uint32 {
	if clear {
		return p.errorCodeBits.Swap(0)
	}
	return p.errorCodeBits.Load()
}

// LatchError sets an error bit from the main loop.
func (p *Platform) LatchError(bits uint32) {
	p.errorCodeBits.Or(bits)
}

// ADC plumbing for the tick sampler

// NumHeaters returns the heater channel count.
func (p *Platform) NumHeaters() int {
	return Heaters
}

// StartThermistorConversion begins a conversion on heater h's channel.
func (p *Platform) StartThermistorConversion(heater int) {
	p.board.StartConversion(p.profile.HeaterChannels[heater])
}

// ReadThermistorConversion fetches the completed conversion.
func (p *Platform) ReadThermistorConversion(heater int) int32 {
	return p.board.ConversionResult(p.profile.HeaterChannels[heater])
}

// StartZProbeConversion begins a conversion on the probe channel.
func (p *Platform) StartZProbeConversion() {
	p.board.StartConversion(p.profile.ZProbeChannel)
}

// ReadZProbeConversion fetches the completed probe conversion.
func (p *Platform) ReadZProbeConversion() int32 {
	return p.board.ConversionResult(p.profile.ZProbeChannel)
}

// SetProbeModulation drives the probe emitter pin.
func (p *Platform) SetProbeModulation(on bool) {
	p.board.SetProbeModulation(on)
}

// ThermistorFilter returns heater h's filter.
func (p *Platform) ThermistorFilter(heater int) *filter.Averaging {
	return p.thermistorFilters[heater]
}

// ZProbeOnFilter returns the emitter-on filter.
func (p *Platform) ZProbeOnFilter() *filter.Averaging {
	return p.zProbeOnFilter
}

// ZProbeOffFilter returns the emitter-off filter.
func (p *Platform) ZProbeOffFilter() *filter.Averaging {
	return p.zProbeOffFilter
}

// ProbeType returns the configured probe variant.
func (p *Platform) ProbeType() nvram.ProbeType {
	return nvram.ProbeType(p.nv.Data().ZProbeType)
}

// Temperatures

// GetTemperature converts heater h's filter sum to degrees Celsius.
// Absolute zero means "disconnected"; ShortedTemperature means the
// sensor reads as a short circuit.
func (p *Platform) GetTemperature(heater int) float64 {
	sum, valid := p.thermistorFilters[heater].State()
	if !valid {
		return float64(nvram.AbsZero)
	}
	rawTemp := float32(sum) / float32(filter.ThermistorReadings)
	if int32(rawTemp) >= AdcDisconnected {
		return float64(nvram.AbsZero)
	}

	pid := &p.nv.Data().PidParams[heater]
	reading := rawTemp - float32(pid.AdcLowOffset)
	span := float32(AdcRange+1) + float32(pid.AdcHighOffset) - float32(pid.AdcLowOffset)
	reading *= float32(AdcRange+1) / span
	if reading >= float32(AdcRange) {
		return float64(nvram.AbsZero)
	}

	resistance := reading * pid.ThermistorSeriesR / (float32(AdcRange+1) - reading)
	if resistance <= pid.ThermistorInfR {
		return float64(ShortedTemperature)
	}
	return float64(nvram.AbsZero + pid.ThermistorBeta/math32.Log(resistance/pid.ThermistorInfR))
}

// Z probe

// ZProbe returns the probe reading in ADC counts: summed emitter-on
// and emitter-off windows for the single-ended types, their difference
// for the modulated type. The difference may legitimately be negative.
func (p *Platform) ZProbe() int {
	onSum, onValid := p.zProbeOnFilter.State()
	offSum, offValid := p.zProbeOffFilter.State()
	if !onValid || !offValid {
		return 0
	}
	switch p.ProbeType() {
	case nvram.ProbeIR, nvram.ProbeAlternate:
		return int((onSum + offSum) / (8 * filter.ZProbeReadings))
	case nvram.ProbeModulatedIR:
		return int((onSum - offSum) / (4 * filter.ZProbeReadings))
	default:
		return 0
	}
}

// ZProbeSecondaryValue returns the emitter-on reading alone, reported
// by G31 for the modulated probe.
func (p *Platform) ZProbeSecondaryValue() int {
	onSum, valid := p.zProbeOnFilter.State()
	if !valid || p.ProbeType() != nvram.ProbeModulatedIR {
		return 0
	}
	return int(onSum / (4 * filter.ZProbeReadings))
}

// SetZProbing tells the platform a probing descent is in progress so
// endstop queries consult the probe.
func (p *Platform) SetZProbing(probing bool) {
	p.zProbing.Store(probing)
}

// ZProbeStopHeight returns the trigger height for the active probe
// variant, corrected for bed temperature.
func (p *Platform) ZProbeStopHeight(bedTemperature float64) float64 {
	return float64(p.nv.Data().ProbeParameters().StopHeight(float32(bedTemperature)))
}

// SetZProbeType selects the probe variant (M558) and persists it.
func (p *Platform) SetZProbeType(t int) error {
	if t < 0 || t > int(nvram.ProbeAlternate) {
		t = 0
	}
	p.nv.Data().ZProbeType = uint8(t)
	return p.nv.Changed()
}

// Endstops

// Stopped reports the endstop state for a drive. While probing, Z uses
// the analog probe with a near-trigger band at 90% of the threshold.
func (p *Platform) Stopped(drive int) EndStopHit {
	if drive == 2 && p.ProbeType() != nvram.ProbeSwitch && p.zProbing.Load() {
		threshold := p.nv.Data().ProbeParameters().AdcValue
		v := int32(p.ZProbe())
		switch {
		case v >= threshold:
			return EndStopLowHit
		case v*10 >= threshold*9:
			return EndStopNearLow
		default:
			return EndStopNotStopped
		}
	}
	if drive < Axes && p.board.EndstopHit(drive) {
		return EndStopLowHit
	}
	return EndStopNotStopped
}

// ATX power (M80/M81)

// SetAtxPower switches the PS_ON relay.
func (p *Platform) SetAtxPower(on bool) {
	p.board.SetAtxPower(on)
}

// Motion parameter access

func (p *Platform) AxisMinimum(axis int) float64 { return p.axisMinima[axis] }
func (p *Platform) AxisMaximum(axis int) float64 { return p.axisMaxima[axis] }

func (p *Platform) SetAxisMinimum(axis int, v float64) { p.axisMinima[axis] = v }
func (p *Platform) SetAxisMaximum(axis int, v float64) { p.axisMaxima[axis] = v }

func (p *Platform) HomeFeedRate(axis int) float64 { return p.homeFeedrates[axis] }

func (p *Platform) SetHomeFeedRate(axis int, v float64) { p.homeFeedrates[axis] = v }

func (p *Platform) MaxFeedrate(drive int) float64       { return p.maxFeedrates[drive] }
func (p *Platform) SetMaxFeedrate(drive int, v float64) { p.maxFeedrates[drive] = v }

func (p *Platform) Acceleration(drive int) float64       { return p.accelerations[drive] }
func (p *Platform) SetAcceleration(drive int, v float64) { p.accelerations[drive] = v }

func (p *Platform) DriveStepsPerUnit(drive int) float64 { return p.driveStepsPerUnit[drive] }
func (p *Platform) SetDriveStepsPerUnit(drive int, v float64) {
	p.driveStepsPerUnit[drive] = v
}

func (p *Platform) InstantDv(drive int) float64       { return p.instantDvs[drive] }
func (p *Platform) SetInstantDv(drive int, v float64) { p.instantDvs[drive] = v }

func (p *Platform) MotorCurrent(drive int) float64       { return p.motorCurrents[drive] }
func (p *Platform) SetMotorCurrent(drive int, v float64) { p.motorCurrents[drive] = v }

// SoftwareReset writes the reset record and invokes the reset hook.
// The stuck-output bits are only probed for non-user resets: a user
// reset is orderly and the probes would just add noise.
func (p *Platform) SoftwareReset(reason uint16) {
	if reason != nvram.ReasonUser {
		if !p.dests[destHost].queue.Empty() && p.dests[destHost].sink.CanWrite() == 0 {
			reason |= nvram.ReasonStuckInUsbOutput
		}
		if !p.dests[destAux].queue.Empty() && p.dests[destAux].sink.CanWrite() == 0 {
			reason |= nvram.ReasonStuckInAuxOutput
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	neverUsed := uint32(mem.HeapSys - mem.HeapInuse)

	if err := p.nv.WriteResetData(reason, neverUsed); err != nil {
		p.logger.Error("cannot record reset reason: %v", err)
	}
	p.logger.Warn("software reset, reason 0x%04x", reason)
	if p.resetHook != nil {
		p.resetHook()
	}
}
