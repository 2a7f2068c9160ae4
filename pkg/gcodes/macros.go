// Macro playback
//
// A macro file (homeall.g, tfree0.g, M98 P...) plays on its own source
// buffer, pumped from inside the handler that started it. The handler
// stays "not done" on its own source for the whole playback, which is
// what keeps a G28 from a host atomic with respect to other input.
// End of file or M99 pops back to the interrupted context; the print
// file, if any, was saved in the stack frame and is restored by pop.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import "github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"

// doFileCannedCycles plays a macro from the sys directory. Call until
// it returns true. A missing file is reported and treated as done, so
// optional macros (tpre0.g and friends) cost nothing when absent.
func (g *GCodes) doFileCannedCycles(name string) bool {
	if !g.doingCannedCycleFile {
		if !g.push() {
			return false
		}
		f := g.platform.MassStorage().OpenFile(platform.SysDir, name, false)
		if f == nil {
			g.platform.MessageF(platform.HostMessage, "Macro file %s not found.\n", name)
			if !g.pop() {
				g.platform.Message(platform.HostMessage, "Cannot pop the stack.\n")
			}
			return true
		}
		g.fileBeingPrinted = f
		g.doingCannedCycleFile = true
		g.cannedGCode.Init()
		return false
	}

	if g.fileBeingPrinted == nil {
		// The file ran out (or M99 closed it); restore the caller.
		if !g.pop() {
			return false
		}
		g.doingCannedCycleFile = false
		g.cannedGCode.Init()
		return true
	}

	// Still playing: finish the macro's current command, or feed it
	// the next character.
	if g.cannedGCode.Active() {
		g.continueCommand(g.cannedGCode)
		return false
	}
	g.doFilePrint(g.cannedGCode)
	return false
}

// fileCannedCyclesReturn ends macro playback early (M99). The
// enclosing doFileCannedCycles sees the closed file and pops.
func (g *GCodes) fileCannedCyclesReturn() bool {
	if !g.doingCannedCycleFile {
		return true
	}
	if !g.allMovesFinishedAndLoaded() {
		return false
	}
	g.cannedGCode.Init()
	if g.fileBeingPrinted != nil {
		g.fileBeingPrinted.Close()
		g.fileBeingPrinted = nil
	}
	return true
}
