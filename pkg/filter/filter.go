// Moving-sum filters for raw ADC readings
//
// Each ADC channel of interest keeps one filter: a fixed ring of raw
// samples, the running sum, and a validity flag that only goes true once
// the ring has been filled. The tick interrupt is the only writer; the
// main loop reads Sum/Valid as a pair.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package filter

import "sync"

// Window sizes per filter kind. Thermistors want a long window for
// noise rejection; the Z-probe wants a short one so probing stays
// responsive.
const (
	ThermistorReadings = 32
	ZProbeReadings     = 8
)

// Averaging is a fixed-size moving sum of raw ADC samples.
type Averaging struct {
	mu      sync.Mutex
	samples []int32
	sum     int32
	index   int
	filled  bool
}

// NewAveraging creates a filter with the given window size.
func NewAveraging(window int) *Averaging {
	if window <= 0 {
		window = 1
	}
	return &Averaging{samples: make([]int32, window)}
}

// Init seeds every slot with val and marks the filter invalid, so the
// first full window of real samples must arrive before Valid reports
// true again.
func (f *Averaging) Init(val int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sum = 0
	for i := range f.samples {
		f.samples[i] = val
		f.sum += val
	}
	f.index = 0
	f.filled = false
}

// Add replaces the oldest sample with a new reading.
func (f *Averaging) Add(sample int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sum = f.sum - f.samples[f.index] + sample
	f.samples[f.index] = sample
	f.index++
	if f.index == len(f.samples) {
		f.index = 0
		f.filled = true
	}
}

// Sum returns the current running sum of the window.
func (f *Averaging) Sum() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sum
}

// Valid reports whether a full window of samples has been taken since
// the last Init.
func (f *Averaging) Valid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filled
}

// State returns sum and validity as one consistent observation.
func (f *Averaging) State() (sum int32, valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sum, f.filled
}

// Window returns the configured window size.
func (f *Averaging) Window() int {
	return len(f.samples)
}
