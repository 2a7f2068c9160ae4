// Reference-counted output buffers for non-blocking messaging
//
// Replies and diagnostics are queued as chains of fixed-capacity
// buffers, one chain per destination. A buffer written once is
// immutable until the whole chain is released. Fan-out to several
// destinations shares the same chain and sets the reference count to
// the destination count; the last release returns the buffer to the
// free pool.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buffer

import (
	"fmt"
	"sync"
)

// BufferCapacity is the payload size of one buffer node.
const BufferCapacity = 256

// DefaultPoolSize is how many buffer nodes the pool owns.
const DefaultPoolSize = 16

// Output is one node in an append-only chain.
type Output struct {
	pool *Pool

	next *Output
	// whole-chain tail, maintained on the head node only
	last *Output

	data       [BufferCapacity]byte
	dataLength int

	references int
}

// Pool owns a fixed set of Output nodes.
type Pool struct {
	mu       sync.Mutex
	free     *Output
	size     int
	used     int
	maxUsed  int
	exhausts int
}

// NewPool creates a pool of n buffer nodes.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = DefaultPoolSize
	}
	p := &Pool{size: n}
	for i := 0; i < n; i++ {
		b := &Output{pool: p}
		b.next = p.free
		p.free = b
	}
	return p
}

// Allocate takes a node from the free list. It returns nil when the
// pool is exhausted; callers on the non-blocking path must treat that
// as "drop the message", never block.
func (p *Pool) Allocate() *Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.free
	if b == nil {
		p.exhausts++
		return nil
	}
	p.free = b.next
	p.used++
	if p.used > p.maxUsed {
		p.maxUsed = p.used
	}
	b.next = nil
	b.last = b
	b.dataLength = 0
	b.references = 1
	return b
}

func (p *Pool) release(b *Output) *Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := b.next
	b.references--
	if b.references <= 0 {
		b.next = p.free
		b.last = nil
		p.free = b
		p.used--
	}
	return next
}

// Stats reports pool occupancy for diagnostics.
func (p *Pool) Stats() (used, maxUsed, size, exhausts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used, p.maxUsed, p.size, p.exhausts
}

// SetReferences marks the whole chain as shared by n destinations.
// Each destination must release every node exactly once.
func (b *Output) SetReferences(n int) {
	p := b.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	for node := b; node != nil; node = node.next {
		node.references = n
	}
}

// Release frees one reference on the head node and returns the rest of
// the chain, which becomes the destination's new head.
func (b *Output) Release() *Output {
	return b.pool.release(b)
}

// ReleaseAll releases every node in the chain once.
func (b *Output) ReleaseAll() {
	for node := b; node != nil; {
		node = node.Release()
	}
}

// Cat appends a string to the chain, extending it with new nodes as
// needed. It reports false if the pool ran dry part-way; the caller
// should then release the whole chain and drop the message.
func (b *Output) Cat(s string) bool {
	return b.appendBytes([]byte(s))
}

// Printf formats into the chain.
func (b *Output) Printf(format string, args ...interface{}) bool {
	return b.appendBytes([]byte(fmt.Sprintf(format, args...)))
}

func (b *Output) appendBytes(data []byte) bool {
	tail := b.last
	for len(data) > 0 {
		space := BufferCapacity - tail.dataLength
		if space == 0 {
			ext := b.pool.Allocate()
			if ext == nil {
				return false
			}
			ext.references = tail.references
			tail.next = ext
			tail = ext
			b.last = ext
			space = BufferCapacity
		}
		n := copy(tail.data[tail.dataLength:], data)
		tail.dataLength += n
		data = data[n:]
	}
	b.last = tail
	return true
}

// Length returns the byte count of this node.
func (b *Output) Length() int {
	return b.dataLength
}

// ChainLength returns the byte count of the whole chain.
func (b *Output) ChainLength() int {
	total := 0
	for node := b; node != nil; node = node.next {
		total += node.dataLength
	}
	return total
}

// Data returns the written bytes of this node. The contents are
// immutable until the chain is released; read cursors belong to the
// destinations (see Queue), since a shared chain is drained at a
// different pace by each of them.
func (b *Output) Data() []byte {
	return b.data[:b.dataLength]
}

// Next returns the next node of the chain.
func (b *Output) Next() *Output {
	return b.next
}

// String collects the chain's contents. Diagnostics only.
func (b *Output) String() string {
	out := make([]byte, 0, b.ChainLength())
	for node := b; node != nil; node = node.next {
		out = append(out, node.data[:node.dataLength]...)
	}
	return string(out)
}
