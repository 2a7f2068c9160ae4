// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buffer

// Queue is one destination's FIFO of pending output. The read cursor
// lives here, not in the buffer nodes: a fanned-out chain is shared by
// several queues and each drains it at its own pace. Each node is
// released exactly once per queue that held it.
type Queue struct {
	nodes  []*Output
	offset int
}

// Append adds a chain to the back of the queue.
func (q *Queue) Append(chain *Output) {
	for node := chain; node != nil; node = node.next {
		q.nodes = append(q.nodes, node)
	}
}

// Empty reports whether there is nothing left to send.
func (q *Queue) Empty() bool {
	return len(q.nodes) == 0
}

// Pending returns how many bytes remain to be sent.
func (q *Queue) Pending() int {
	total := -q.offset
	for _, node := range q.nodes {
		total += node.Length()
	}
	return total
}

// Peek returns the unsent bytes of the front node.
func (q *Queue) Peek() []byte {
	if len(q.nodes) == 0 {
		return nil
	}
	return q.nodes[0].Data()[q.offset:]
}

// Advance consumes n bytes from the front, releasing nodes as they
// complete. Advance(0) still pops fully-consumed or empty front
// nodes.
func (q *Queue) Advance(n int) {
	for len(q.nodes) > 0 {
		remain := q.nodes[0].Length() - q.offset
		if remain > n {
			q.offset += n
			return
		}
		n -= remain
		q.releaseFront()
	}
}

// Clear releases everything still queued.
func (q *Queue) Clear() {
	for len(q.nodes) > 0 {
		q.releaseFront()
	}
}

func (q *Queue) releaseFront() {
	q.nodes[0].Release()
	q.nodes[0] = nil
	q.nodes = q.nodes[1:]
	q.offset = 0
	if len(q.nodes) == 0 {
		q.nodes = nil
	}
}
