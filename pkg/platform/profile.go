// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the board description loaded at start-up: pin/channel
// assignments and the motion defaults that config.g may later
// override. It replaces the compiled-in pin tables of an embedded
// build.
type Profile struct {
	Name string `yaml:"name"`

	// ADC channel numbers, one per heater, bed first.
	HeaterChannels []int `yaml:"heater_channels"`

	// Z-probe ADC channel.
	ZProbeChannel int `yaml:"zprobe_channel"`

	Axes struct {
		Minima        []float64 `yaml:"minima"`
		Maxima        []float64 `yaml:"maxima"`
		HomeFeedrates []float64 `yaml:"home_feedrates"` // mm/min
	} `yaml:"axes"`

	Drives struct {
		MaxFeedrates      []float64 `yaml:"max_feedrates"` // mm/min
		Accelerations     []float64 `yaml:"accelerations"`
		StepsPerUnit      []float64 `yaml:"steps_per_unit"`
		InstantDvs        []float64 `yaml:"instant_dvs"`
		MotorCurrents     []float64 `yaml:"motor_currents"` // mA
		TravelSpeedFactor float64   `yaml:"travel_speed_factor"`
	} `yaml:"drives"`

	Storage struct {
		// Root of the emulated card. gcodes/, sys/ and www/ live
		// under it.
		Root string `yaml:"root"`
		// Directory for the emulated flash sectors.
		NvDir string `yaml:"nv_dir"`
	} `yaml:"storage"`
}

// DefaultProfile returns a Cartesian profile close to the classic
// single-extruder machines this firmware family grew up on.
func DefaultProfile() *Profile {
	p := &Profile{Name: "generic-cartesian"}
	p.HeaterChannels = []int{5, 4, 3, 2}
	p.ZProbeChannel = 0
	p.Axes.Minima = []float64{0, 0, 0}
	p.Axes.Maxima = []float64{210, 210, 140}
	p.Axes.HomeFeedrates = []float64{50 * 60, 50 * 60, 1 * 60}
	p.Drives.MaxFeedrates = []float64{100 * 60, 100 * 60, 3 * 60, 20 * 60}
	p.Drives.Accelerations = []float64{800, 800, 10, 250}
	p.Drives.StepsPerUnit = []float64{87.49, 87.49, 4000, 420}
	p.Drives.InstantDvs = []float64{15, 15, 0.2, 2}
	p.Drives.MotorCurrents = []float64{800, 800, 800, 800}
	p.Drives.TravelSpeedFactor = 1.0
	p.Storage.Root = "storage"
	p.Storage.NvDir = "nv"
	return p
}

// LoadProfile reads a profile from a YAML file, filling gaps from the
// defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func (p *Profile) validate() error {
	if len(p.HeaterChannels) < Heaters {
		return fmt.Errorf("need %d heater channels, got %d", Heaters, len(p.HeaterChannels))
	}
	if len(p.Axes.Minima) != 3 || len(p.Axes.Maxima) != 3 || len(p.Axes.HomeFeedrates) != 3 {
		return fmt.Errorf("axes arrays must have 3 entries")
	}
	for i := range p.Axes.Minima {
		if p.Axes.Minima[i] >= p.Axes.Maxima[i] {
			return fmt.Errorf("axis %d: minimum %v not below maximum %v", i, p.Axes.Minima[i], p.Axes.Maxima[i])
		}
	}
	n := len(p.Drives.MaxFeedrates)
	if n < 4 {
		return fmt.Errorf("need at least 4 drives, got %d", n)
	}
	for _, arr := range [][]float64{p.Drives.Accelerations, p.Drives.StepsPerUnit, p.Drives.InstantDvs, p.Drives.MotorCurrents} {
		if len(arr) != n {
			return fmt.Errorf("drive arrays must all have %d entries", n)
		}
	}
	return nil
}
