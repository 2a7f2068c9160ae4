// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"runtime"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
)

// Module identifies a firmware subsystem. The main loop records which
// module it is about to spin so a watchdog reset can name the one that
// wedged.
type Module int

const (
	ModulePlatform Module = iota
	ModuleNetwork
	ModuleWebserver
	ModuleGCodes
	ModuleMove
	ModuleHeat
	ModuleNone Module = 15
)

var moduleNames = map[Module]string{
	ModulePlatform:  "platform",
	ModuleNetwork:   "network",
	ModuleWebserver: "webserver",
	ModuleGCodes:    "gcodes",
	ModuleMove:      "move",
	ModuleHeat:      "heat",
	ModuleNone:      "none",
}

func (m Module) String() string {
	if name, ok := moduleNames[m]; ok {
		return name
	}
	return "unknown"
}

// Diagnostics reports platform health (M122).
func (p *Platform) Diagnostics() {
	p.Message(GenericMessage, "Platform diagnostics:\n")

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	p.MessageF(GenericMessage, "Memory in use: %d, system: %d\n", mem.HeapInuse, mem.HeapSys)

	p.MessageF(GenericMessage, "Last reset: %v\n", p.resetCause)
	if rec, ok := p.nv.ReadResetData(); ok {
		p.MessageF(GenericMessage,
			"Last software reset code 0x%04x, spinning module %s, available RAM %d\n",
			rec.ResetReason,
			Module(rec.ResetReason&nvram.ReasonModuleMask),
			rec.NeverUsedRAM)
	}

	if bits := p.ErrorCodeBits(false); bits != 0 {
		p.MessageF(GenericMessage, "Error status: 0x%02x\n", bits)
	}

	if t := p.storage.GetAndClearLongestWriteTime(); t > 0 {
		p.MessageF(GenericMessage, "Longest block write time: %.1fms\n", t)
	}

	used, maxUsed, size, exhausts := p.pool.Stats()
	p.MessageF(GenericMessage,
		"Output buffers: %d of %d in use, %d max, %d starvations\n",
		used, size, maxUsed, exhausts)
	if exhausts > 0 {
		p.LatchError(ErrorOutputStarvation)
	}
}
