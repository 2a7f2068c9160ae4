// Reply routing and firmware emulation
//
// The reply text is the same whatever the sender speaks; emulation
// (M555) only changes the framing. Marlin wants its "ok" teletype
// rhythm and special casing for a few codes; native mode stays quiet
// unless there is something to say.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

// Compatibility selects the reply dialect.
type Compatibility uint8

const (
	CompatMe Compatibility = iota
	CompatRepRapFirmware
	CompatMarlin
	CompatTeacup
	CompatSprinter
	CompatRepetier
)

func (c Compatibility) String() string {
	switch c {
	case CompatMe, CompatRepRapFirmware:
		return "RepRap Firmware"
	case CompatMarlin:
		return "Marlin"
	case CompatTeacup:
		return "teacup"
	case CompatSprinter:
		return "sprinter"
	case CompatRepetier:
		return "repetier"
	}
	return "unknown"
}

// Emulating reports the persisted reply dialect.
func (g *GCodes) Emulating() Compatibility {
	return Compatibility(g.platform.NVData().Data().Compatibility)
}

func (g *GCodes) setEmulation(c Compatibility) error {
	g.platform.NVData().Data().Compatibility = uint8(c)
	return g.platform.NVData().Changed()
}

// reply routes a handler's result back to the source it came from.
func (g *GCodes) reply(b *gcode.Buffer, res result) {
	letter, code, _ := b.Command()
	g.handleReply(b, res.err, res.message, letter, code, res.resend)
}

// handleReply frames and delivers one reply. Web replies always use
// the native framing; the emulation dialect only applies to the
// serial line.
func (g *GCodes) handleReply(b *gcode.Buffer, isErr bool, reply string, letter byte, code int, resend bool) {
	fromWeb := b == g.webGCode

	// The web client sees every reply, whatever source it answers,
	// except the bulk diagnostics it asked for itself.
	if g.webserver != nil && (letter != 'M' || (code != 111 && code != 122)) {
		if isErr {
			g.webserver.HandleReply("Error: " + reply)
		} else {
			g.webserver.HandleReply(reply)
		}
	}

	c := g.Emulating()
	if fromWeb {
		c = CompatMe
	}

	response := "ok"
	if resend {
		response = "rs "
	}

	switch c {
	case CompatMe, CompatRepRapFirmware:
		if reply == "" {
			return
		}
		if isErr {
			g.platform.Message(platform.HostMessage, "Error: ")
		}
		g.platform.Message(platform.HostMessage, reply+"\n")
		return

	case CompatMarlin:
		switch {
		case letter == 'M' && code == 20:
			g.platform.Message(platform.HostMessage, "Begin file list\n")
			g.platform.Message(platform.HostMessage, reply)
			g.platform.Message(platform.HostMessage, "\nEnd file list\n")
			g.platform.Message(platform.HostMessage, response+"\n")

		case letter == 'M' && code == 28:
			g.platform.Message(platform.HostMessage, response+"\n")
			g.platform.Message(platform.HostMessage, reply+"\n")

		case (letter == 'M' && code == 105) || (letter == 'G' && code == 998):
			g.platform.Message(platform.HostMessage, response+" "+reply+"\n")

		default:
			if reply != "" {
				g.platform.Message(platform.HostMessage, reply+"\n")
			}
			g.platform.Message(platform.HostMessage, response+"\n")
		}
		return
	}

	if !g.unsupportedEmulationReported {
		g.unsupportedEmulationReported = true
		g.platform.MessageF(platform.HostMessage, "Emulation of %s is not yet supported.\n", c)
	}
}
