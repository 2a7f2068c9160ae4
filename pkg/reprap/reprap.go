// Package reprap is the firmware top level: it owns the platform, the
// motion and heat layers and the G-code dispatcher, wires them to the
// safety manager and the tick sampler, and runs the cooperative main
// loop. Everything below it is spun in a fixed order once per pass,
// and the module being spun is tracked so a watchdog reset can say
// where the loop was stuck.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package reprap

import (
	"context"
	"time"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcodes"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/safety"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/tick"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/webserver"
)

// spinSleep keeps the main loop from spinning flat out between passes.
const spinSleep = 250 * time.Microsecond

// RepRap is the assembled machine.
type RepRap struct {
	platform *platform.Platform
	safety   *safety.Manager
	move     *Move
	heat     *Heat
	gcodes   *gcodes.GCodes
	sampler  *tick.Sampler
	logger   *log.Logger

	spinningModule platform.Module
	spins          uint64
	active         bool
}

// startupSource plays a sys/ file through the host byte source before
// live host traffic, so config.g runs ahead of everything else.
type startupSource struct {
	file *platform.FileStore
	next gcodes.ByteSource
	last byte
}

func (s *startupSource) ByteAvailable() bool {
	if s.file != nil {
		return true
	}
	return s.next != nil && s.next.ByteAvailable()
}

func (s *startupSource) ReadByte() byte {
	if s.file != nil {
		if c, ok := s.file.Read(); ok {
			s.last = c
			return c
		}
		s.file.Close()
		s.file = nil
		if s.last != '\n' {
			return '\n'
		}
	}
	if s.next != nil && s.next.ByteAvailable() {
		return s.next.ReadByte()
	}
	return '\n'
}

// New assembles the machine around an initialized-ready platform. web
// and host may be nil when those transports are absent.
func New(p *platform.Platform, mgr *safety.Manager, web gcodes.Webserver, host gcodes.ByteSource) *RepRap {
	if f := p.MassStorage().OpenFile(platform.SysDir, platform.ConfigFile, false); f != nil {
		host = &startupSource{file: f, next: host, last: '\n'}
	}

	move := NewMove(p)
	heat := NewHeat(p)
	gc := gcodes.New(p, move, heat, web, host, mgr)
	move.SetSource(gc)

	mgr.RegisterDrives(move)
	mgr.RegisterHeaters(heat)

	return &RepRap{
		platform:       p,
		safety:         mgr,
		move:           move,
		heat:           heat,
		gcodes:         gc,
		sampler:        tick.New(p, mgr),
		logger:         log.GetLogger("reprap"),
		spinningModule: platform.ModuleNone,
	}
}

// Init brings every module up. The platform must already be running.
func (r *RepRap) Init() {
	r.move.Init()
	r.heat.Init()
	r.gcodes.Init()
	r.active = true
	r.logger.Info("machine initialized")
}

// Start launches the tick sampler and the safety watchdog.
func (r *RepRap) Start() {
	r.sampler.Start()
	r.safety.StartWatchdog()
}

// Stop shuts the background machinery down and cuts heat and motors.
func (r *RepRap) Stop() {
	r.active = false
	r.sampler.Stop()
	r.safety.StopWatchdog()
	r.heat.Exit()
	r.move.Exit()
}

// Spin runs one pass of the cooperative loop.
func (r *RepRap) Spin() {
	r.spinningModule = platform.ModulePlatform
	r.platform.Spin()

	r.spinningModule = platform.ModuleGCodes
	r.gcodes.Spin()

	r.spinningModule = platform.ModuleMove
	r.move.Spin()

	r.spinningModule = platform.ModuleHeat
	r.heat.Spin()

	r.spinningModule = platform.ModuleNone
	r.spins++
}

// Run spins until the context is cancelled or the machine leaves the
// running state.
func (r *RepRap) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !r.active {
			return
		}
		r.Spin()
		time.Sleep(spinSleep)
	}
}

// EmergencyStop is the transport-facing kill hook (M112, rr_estop).
func (r *RepRap) EmergencyStop() {
	r.safety.EmergencyStop("Emergency stop")
}

// SpinningModule reports which module the loop is currently inside.
func (r *RepRap) SpinningModule() platform.Module {
	return r.spinningModule
}

// GCodes exposes the dispatcher.
func (r *RepRap) GCodes() *gcodes.GCodes { return r.gcodes }

// Move exposes the motion layer.
func (r *RepRap) Move() *Move { return r.move }

// Heat exposes the temperature controller.
func (r *RepRap) Heat() *Heat { return r.heat }

// Status builds the snapshot served by rr_status and the websocket.
func (r *RepRap) Status() webserver.Status {
	st := webserver.Status{
		State:       "I",
		MachineName: r.gcodes.MachineName(),
		Probe:       r.platform.ZProbe(),
		FanRPM:      r.platform.FanRPM(),
		Tool:        r.gcodes.CurrentTool(),
	}
	if !r.safety.IsOperational() {
		st.State = "S"
	} else if r.gcodes.PrintingAFile() {
		st.State = "P"
	}

	for i := 0; i < platform.Heaters; i++ {
		st.Heaters = append(st.Heaters, r.platform.GetTemperature(i))
		st.Active = append(st.Active, r.heat.ActiveTemperature(i))
	}

	pos := r.move.LiveCoordinates()
	st.Pos = pos[:platform.Axes]

	if f := r.gcodes.FractionOfFilePrinted(); f >= 0 {
		st.FractionPrinted = f
	}
	return st
}

// Diagnostics dumps every module's state to the generic destinations.
func (r *RepRap) Diagnostics() {
	r.platform.MessageF(platform.GenericMessage,
		"Main loop: %d spins, currently in %s\n", r.spins, r.spinningModule)
	r.platform.Diagnostics()
	r.gcodes.Diagnostics()
	r.move.Diagnostics()
	r.heat.Diagnostics()
}
