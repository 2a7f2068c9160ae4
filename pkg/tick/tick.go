// Package tick runs the fixed-rate sampling loop: it sequences ADC
// conversions across the heater thermistors and the Z probe, feeds the
// averaging filters, and force-stops any heater whose filter crosses
// the overheat threshold. On the embedded boards this work lived in a
// timer interrupt; here it is a goroutine on a millisecond ticker, and
// it keeps the same discipline: integer arithmetic only, no
// allocation, no blocking.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package tick

import (
	"time"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/filter"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
)

// DefaultInterval is the sampling period.
const DefaultInterval = time.Millisecond

// Hardware is what the sampler needs from the platform. Every method
// must be callable from the tick goroutine.
type Hardware interface {
	NumHeaters() int
	ProbeType() nvram.ProbeType

	StartThermistorConversion(heater int)
	ReadThermistorConversion(heater int) int32
	StartZProbeConversion()
	ReadZProbeConversion() int32
	SetProbeModulation(on bool)

	ThermistorFilter(heater int) *filter.Averaging
	ZProbeOnFilter() *filter.Averaging
	ZProbeOffFilter() *filter.Averaging

	// OverheatSum is the precomputed danger threshold for a heater, in
	// the filter-sum domain. MaxSum is the disconnected sentinel.
	OverheatSum(heater int) int32
	MaxSum() int32

	// HeaterFault cuts the heater and latches the error.
	HeaterFault(heater int)
}

// Watchdog is petted once per tick.
type Watchdog interface {
	Pet()
}

// Sampler is the tick state machine. Phases 0 and 2 start thermistor
// conversions, 1 and 3 collect them, and the probe conversions ride in
// between with the emitter modulated so ambient light can be
// subtracted.
type Sampler struct {
	hw     Hardware
	dog    Watchdog
	logger *log.Logger

	phase         int
	currentHeater int

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New creates a sampler. dog may be nil.
func New(hw Hardware, dog Watchdog) *Sampler {
	return &Sampler{
		hw:       hw,
		dog:      dog,
		logger:   log.GetLogger("tick"),
		interval: DefaultInterval,
	}
}

// SetInterval overrides the sampling period. Must be called before
// Start.
func (s *Sampler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the loop until Stop.
func (s *Sampler) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
}

// Stop halts the loop and waits for it to exit.
func (s *Sampler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

func (s *Sampler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("sampling every %v", s.interval)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick advances the state machine one step. Exported so tests can
// drive it without real time.
func (s *Sampler) Tick() {
	switch s.phase {
	case 0:
		s.hw.StartThermistorConversion(s.currentHeater)
		if s.hw.ProbeType().DrivesModulation() {
			s.hw.SetProbeModulation(true)
		}
		s.phase = 1

	case 1:
		s.collectThermistor()
		s.hw.StartZProbeConversion()
		s.phase = 2

	case 2:
		s.hw.ZProbeOnFilter().Add(s.hw.ReadZProbeConversion())
		if s.hw.ProbeType() == nvram.ProbeModulatedIR {
			s.hw.SetProbeModulation(false)
		}
		s.hw.StartThermistorConversion(s.currentHeater)
		s.phase = 3

	case 3:
		s.collectThermistor()
		s.hw.StartZProbeConversion()
		s.phase = 4

	case 4:
		s.hw.ZProbeOffFilter().Add(s.hw.ReadZProbeConversion())
		s.phase = 0
	}

	if s.dog != nil {
		s.dog.Pet()
	}
}

// collectThermistor folds the finished conversion into the heater's
// filter and applies the cutoff. Integer comparisons only: a sum below
// the overheat threshold means too hot, a sum at the sentinel means
// the thermistor is gone, and both cut the heater now rather than
// waiting for the control loop to notice.
func (s *Sampler) collectThermistor() {
	h := s.currentHeater
	f := s.hw.ThermistorFilter(h)
	f.Add(s.hw.ReadThermistorConversion(h))
	if sum, valid := f.State(); valid {
		if sum < s.hw.OverheatSum(h) || sum >= s.hw.MaxSum() {
			s.hw.HeaterFault(h)
		}
	}
	s.currentHeater = (h + 1) % s.hw.NumHeaters()
}
