// File upload paths
//
// During an M28 upload every completed line from the source is written
// to the target file instead of being executed, until an M29 closes it.
// An M560 web-page upload is raw bytes with no line structure at all;
// it ends when the EoF marker has been seen.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"strconv"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
)

const pageEofString = "<!-- **EoF** -->"

// writeGCodeToFile takes one completed line during an M28/M559 upload.
// M29 ends the upload; a G998 still gets its resend so the sender's
// checksum protocol keeps working mid-upload.
func (g *GCodes) writeGCodeToFile(b *gcode.Buffer) {
	letter, code, okCmd := b.Command()

	if okCmd && letter == 'M' && code == 29 {
		if g.fileBeingWritten != nil {
			g.fileBeingWritten.Close()
			g.fileBeingWritten = nil
		}
		msg := ""
		if g.Emulating() == CompatMarlin {
			msg = "Done saving file."
		}
		g.handleReply(b, false, msg, 'M', 29, false)
		b.Init()
		return
	}

	if okCmd && letter == 'G' && code == 998 && b.Seen('P') {
		g.handleReply(b, false, strconv.Itoa(b.GetIValue()), 'G', 998, true)
		b.Init()
		return
	}

	if g.fileBeingWritten != nil {
		if err := g.fileBeingWritten.WriteString(b.Line() + "\n"); err != nil {
			g.logger.Error("upload write failed: %v", err)
		}
	}
	g.handleReply(b, false, "", 'G', 1, false)
	b.Init()
}

// writeHTMLToFile takes one raw byte during an M560 upload. Bytes that
// form a prefix of the EoF marker are held back until the match either
// completes, ending the upload, or breaks, at which point the held
// prefix is flushed to the file.
func (g *GCodes) writeHTMLToFile(c byte) {
	if g.fileBeingWritten == nil {
		g.writingWebFile = false
		return
	}

	if c == pageEofString[g.eofStringCounter] {
		g.eofStringCounter++
		if g.eofStringCounter < len(pageEofString) {
			return
		}
		g.fileBeingWritten.Close()
		g.fileBeingWritten = nil
		g.writingWebFile = false
		g.eofStringCounter = 0
		g.handleReply(g.hostGCode, false, "Done saving file.", 'M', 560, false)
		return
	}

	for i := 0; i < g.eofStringCounter; i++ {
		g.fileBeingWritten.Write(pageEofString[i])
	}
	g.eofStringCounter = 0
	g.fileBeingWritten.Write(c)
}
