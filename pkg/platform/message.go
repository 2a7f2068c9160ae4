// Message routing
//
// Replies and diagnostics are classified by kind and fanned out to the
// destinations that should carry them. Non-blocking kinds go through
// the refcounted buffer pool and are drained by Spin; the blocking
// kinds (debug, direct aux) write straight through and can stall the
// main loop, which is exactly why they exist: they still work when
// everything else is wedged.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"fmt"
	"strings"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/buffer"
)

// MessageType classifies a message for routing.
type MessageType int

const (
	// HostMessage goes to the host serial link, indented to show
	// macro nesting.
	HostMessage MessageType = iota

	// AuxMessage goes to the auxiliary (panel) port.
	AuxMessage

	// DebugMessage is written synchronously to the debug channel.
	// Dangerous: it may stall the main loop.
	DebugMessage

	// HTTPMessage is queued for the web server to collect.
	HTTPMessage

	// TelnetMessage is queued for the telnet service to collect.
	TelnetMessage

	// GenericMessage fans out to host, HTTP and telnet.
	GenericMessage
)

// Sink is a non-blocking byte consumer for one destination.
type Sink interface {
	// CanWrite returns how many bytes the destination can accept
	// right now. Zero means try again next spin.
	CanWrite() int

	// Write must accept at most CanWrite() bytes without blocking.
	Write(p []byte) (int, error)
}

// nullSink discards everything; destinations start with it so the
// router works before transports attach.
type nullSink struct{}

func (nullSink) CanWrite() int               { return 1 << 16 }
func (nullSink) Write(p []byte) (int, error) { return len(p), nil }

type destination struct {
	sink  Sink
	queue buffer.Queue
}

func (d *destination) drain() {
	for !d.queue.Empty() {
		room := d.sink.CanWrite()
		if room == 0 {
			return
		}
		data := d.queue.Peek()
		if len(data) == 0 {
			d.queue.Advance(0)
			continue
		}
		if len(data) > room {
			data = data[:room]
		}
		n, err := d.sink.Write(data)
		if err != nil {
			// Destination is broken; drop its backlog.
			d.queue.Clear()
			return
		}
		d.queue.Advance(n)
		if n < len(data) {
			return
		}
	}
}

const (
	destHost = iota
	destAux
	destHTTP
	destTelnet
	destCount
)

// SetHostSink attaches the host serial transport.
func (p *Platform) SetHostSink(s Sink) { p.dests[destHost].sink = s }

// SetAuxSink attaches the auxiliary port transport.
func (p *Platform) SetAuxSink(s Sink) { p.dests[destAux].sink = s }

// SetHTTPSink attaches the web server reply channel.
func (p *Platform) SetHTTPSink(s Sink) { p.dests[destHTTP].sink = s }

// SetTelnetSink attaches the telnet reply channel.
func (p *Platform) SetTelnetSink(s Sink) { p.dests[destTelnet].sink = s }

// PushMessageIndent deepens host-message indentation on macro entry.
func (p *Platform) PushMessageIndent() {
	p.messageIndent += 2
}

// PopMessageIndent undoes one PushMessageIndent.
func (p *Platform) PopMessageIndent() {
	if p.messageIndent >= 2 {
		p.messageIndent -= 2
	}
}

// Message routes one message by kind.
func (p *Platform) Message(kind MessageType, text string) {
	switch kind {
	case HostMessage:
		if p.messageIndent > 0 {
			text = strings.Repeat(" ", p.messageIndent) + text
		}
		p.enqueue(text, destHost)
	case AuxMessage:
		p.enqueue(text, destAux)
	case HTTPMessage:
		p.enqueue(text, destHTTP)
	case TelnetMessage:
		p.enqueue(text, destTelnet)
	case GenericMessage:
		p.enqueue(text, destHost, destHTTP, destTelnet)
	case DebugMessage:
		// Blocking by design of the debug channel: bypass the pool.
		fmt.Fprint(p.debugWriter, text)
	}
}

// MessageF routes a formatted message.
func (p *Platform) MessageF(kind MessageType, format string, args ...interface{}) {
	p.Message(kind, fmt.Sprintf(format, args...))
}

func (p *Platform) enqueue(text string, dests ...int) {
	chain := p.pool.Allocate()
	if chain == nil {
		p.logger.Warn("output pool exhausted, message dropped")
		return
	}
	if !chain.Cat(text) {
		chain.ReleaseAll()
		p.logger.Warn("output pool exhausted, message dropped")
		return
	}
	if len(dests) > 1 {
		chain.SetReferences(len(dests))
	}
	for _, d := range dests {
		p.dests[d].queue.Append(chain)
	}
}

// drainOutput moves queued bytes to the destinations that can take
// them. Called from Spin.
func (p *Platform) drainOutput() {
	for i := range p.dests {
		p.dests[i].drain()
	}
}
