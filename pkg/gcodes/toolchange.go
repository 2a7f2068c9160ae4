// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"fmt"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
)

// Tool is one selectable tool, defined by M563.
type Tool struct {
	Number int
	Heater int
	Drive  int
}

// doToolChange handles a T word: the six-phase change sequence. Old
// and new being the same tool still runs the macros; the user may
// want them.
func (g *GCodes) doToolChange(b *gcode.Buffer, toolNumber int) result {
	if g.changeTool(toolNumber) {
		return ok()
	}
	return working
}

func (g *GCodes) changeTool(newToolNumber int) bool {
	oldTool := g.getTool(g.currentTool)
	newTool := g.getTool(newToolNumber)

	switch g.toolChangeSequence {
	case 0: // Pre-release macro for the old tool.
		if oldTool != nil {
			if g.doFileCannedCycles(fmt.Sprintf("tfree%d.g", oldTool.Number)) {
				g.toolChangeSequence++
			}
		} else {
			g.toolChangeSequence++
		}
		return false

	case 1: // Release the old tool.
		if oldTool != nil {
			g.standbyTool(oldTool)
		}
		g.toolChangeSequence++
		return false

	case 2: // Pre-change macro for the new tool.
		if newTool != nil {
			if g.doFileCannedCycles(fmt.Sprintf("tpre%d.g", newToolNumber)) {
				g.toolChangeSequence++
			}
		} else {
			g.toolChangeSequence++
		}
		return false

	case 3: // Select the new tool. Selecting one that does not exist
		// just deselects everything.
		g.selectTool(newToolNumber)
		g.toolChangeSequence++
		return false

	case 4: // Post-change macro for the new tool.
		if newTool != nil {
			if g.doFileCannedCycles(fmt.Sprintf("tpost%d.g", newToolNumber)) {
				g.toolChangeSequence++
			}
		} else {
			g.toolChangeSequence++
		}
		return false

	case 5:
		g.toolChangeSequence = 0
		return true

	default:
		g.logger.Error("tool change: dud sequence number %d", g.toolChangeSequence)
		g.toolChangeSequence = 0
		return true
	}
}

func (g *GCodes) getTool(number int) *Tool {
	if number < 0 {
		return nil
	}
	for i := range g.tools {
		if g.tools[i].Number == number {
			return &g.tools[i]
		}
	}
	return nil
}

func (g *GCodes) standbyTool(t *Tool) {
	if g.heat != nil {
		g.heat.Standby(t.Heater)
	}
}

func (g *GCodes) selectTool(number int) {
	t := g.getTool(number)
	if t == nil {
		g.currentTool = -1
		return
	}
	g.currentTool = number
	if g.heat != nil {
		g.heat.Activate(t.Heater)
	}
}

// CurrentTool reports the selected tool number, -1 for none.
func (g *GCodes) CurrentTool() int {
	return g.currentTool
}
