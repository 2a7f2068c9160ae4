// Host link adapter
//
// The dispatcher polls for single bytes and the message router pushes
// reply chunks; the tty underneath blocks. Link bridges the two with a
// reader goroutine feeding an inbound channel and a writer goroutine
// draining an outbound one, so the main loop never waits on the wire.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import (
	"errors"
	"io"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
)

const (
	linkInboundSize  = 4096
	linkOutboundSize = 64
	linkChunkSize    = 256
)

// Link adapts a blocking ReadWriter (normally a Port) to the polled
// byte-in, chunk-out shape the dispatcher and message router expect.
type Link struct {
	rw     io.ReadWriter
	logger *log.Logger

	in   chan byte
	out  chan []byte
	stop chan struct{}
	done chan struct{}
}

// NewLink wraps rw. Call Start before use.
func NewLink(rw io.ReadWriter) *Link {
	return &Link{
		rw:     rw,
		logger: log.GetLogger("serial"),
		in:     make(chan byte, linkInboundSize),
		out:    make(chan []byte, linkOutboundSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}, 2),
	}
}

// Start launches the reader and writer goroutines.
func (l *Link) Start() {
	go l.readLoop()
	go l.writeLoop()
}

// Stop terminates both goroutines. The reader may stay blocked in a
// Read until the underlying port is closed or its timeout fires.
func (l *Link) Stop() {
	close(l.stop)
	<-l.done
	<-l.done
}

func (l *Link) readLoop() {
	defer func() { l.done <- struct{}{} }()
	buf := make([]byte, 64)
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		n, err := l.rw.Read(buf)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrClosed) {
				l.logger.Warn("host link read: %v", err)
			}
			return
		}
		for _, c := range buf[:n] {
			select {
			case l.in <- c:
			case <-l.stop:
				return
			}
		}
	}
}

func (l *Link) writeLoop() {
	defer func() { l.done <- struct{}{} }()
	for {
		select {
		case <-l.stop:
			return
		case chunk := <-l.out:
			for len(chunk) > 0 {
				n, err := l.rw.Write(chunk)
				if err != nil {
					l.logger.Warn("host link write: %v", err)
					return
				}
				chunk = chunk[n:]
			}
		}
	}
}

// ByteAvailable reports buffered input.
func (l *Link) ByteAvailable() bool {
	return len(l.in) > 0
}

// ReadByte pops one buffered input byte; zero when none is ready.
func (l *Link) ReadByte() byte {
	select {
	case c := <-l.in:
		return c
	default:
		return 0
	}
}

// CanWrite reports how much reply data the link will take right now.
func (l *Link) CanWrite() int {
	if len(l.out) >= cap(l.out) {
		return 0
	}
	return linkChunkSize
}

// Write queues a reply chunk. Must not be called with more than
// CanWrite() bytes.
func (l *Link) Write(p []byte) (int, error) {
	chunk := append([]byte(nil), p...)
	select {
	case l.out <- chunk:
		return len(p), nil
	default:
		return 0, nil
	}
}
