// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeRW is an in-memory stand-in for a Port: reads block on a
// channel, writes collect in a buffer.
type pipeRW struct {
	in chan byte

	mu  sync.Mutex
	out bytes.Buffer
}

func newPipeRW() *pipeRW {
	return &pipeRW{in: make(chan byte, 256)}
}

func (p *pipeRW) Read(buf []byte) (int, error) {
	select {
	case c, ok := <-p.in:
		if !ok {
			return 0, io.EOF
		}
		buf[0] = c
		return 1, nil
	case <-time.After(20 * time.Millisecond):
		return 0, ErrTimeout
	}
}

func (p *pipeRW) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(buf)
}

func (p *pipeRW) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func TestLinkDeliversInboundBytes(t *testing.T) {
	rw := newPipeRW()
	l := NewLink(rw)
	l.Start()
	defer func() {
		close(rw.in)
		l.Stop()
	}()

	for _, c := range []byte("G28\n") {
		rw.in <- c
	}

	var got []byte
	require.Eventually(t, func() bool {
		for l.ByteAvailable() {
			got = append(got, l.ReadByte())
		}
		return len(got) == 4
	}, time.Second, time.Millisecond)
	assert.Equal(t, "G28\n", string(got))
}

func TestLinkWritesOutboundChunks(t *testing.T) {
	rw := newPipeRW()
	l := NewLink(rw)
	l.Start()
	defer func() {
		close(rw.in)
		l.Stop()
	}()

	require.Greater(t, l.CanWrite(), 0)
	n, err := l.Write([]byte("ok\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Eventually(t, func() bool {
		return rw.written() == "ok\n"
	}, time.Second, time.Millisecond)
}

func TestLinkReadByteWithoutDataReturnsZero(t *testing.T) {
	l := NewLink(newPipeRW())
	assert.False(t, l.ByteAvailable())
	assert.Equal(t, byte(0), l.ReadByte())
}
