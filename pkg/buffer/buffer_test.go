// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buffer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateRelease(t *testing.T) {
	p := NewPool(2)
	b := p.Allocate()
	require.NotNil(t, b)

	used, _, size, _ := p.Stats()
	assert.Equal(t, 1, used)
	assert.Equal(t, 2, size)

	b.Release()
	used, maxUsed, _, _ := p.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 1, maxUsed)
}

func TestExhaustionReturnsNil(t *testing.T) {
	p := NewPool(1)
	b := p.Allocate()
	require.NotNil(t, b)
	assert.Nil(t, p.Allocate(), "second allocate must fail, not block")

	_, _, _, exhausts := p.Stats()
	assert.Equal(t, 1, exhausts)
	b.Release()
	assert.NotNil(t, p.Allocate())
}

func TestChainGrowsAcrossNodes(t *testing.T) {
	p := NewPool(4)
	b := p.Allocate()
	require.NotNil(t, b)

	long := strings.Repeat("x", BufferCapacity+10)
	require.True(t, b.Cat(long))
	assert.Equal(t, len(long), b.ChainLength())
	assert.NotNil(t, b.Next(), "overflow should have chained a second node")
	assert.Equal(t, long, b.String())

	b.ReleaseAll()
	used, _, _, _ := p.Stats()
	assert.Equal(t, 0, used)
}

func TestFanOutFreesExactlyOnce(t *testing.T) {
	const destinations = 3
	p := NewPool(2)
	b := p.Allocate()
	require.NotNil(t, b)
	require.True(t, b.Printf("T:%d", 200))

	b.SetReferences(destinations)
	for i := 0; i < destinations; i++ {
		used, _, _, _ := p.Stats()
		assert.Equal(t, 1, used, "node must stay allocated until the last release")
		b.Release()
	}
	used, _, _, _ := p.Stats()
	assert.Equal(t, 0, used)
}

func TestQueuePartialWrites(t *testing.T) {
	p := NewPool(1)
	var q Queue
	b := p.Allocate()
	require.True(t, b.Cat("hello"))
	q.Append(b)

	q.Advance(2)
	assert.Equal(t, "llo", string(q.Peek()))
	q.Advance(3)
	assert.True(t, q.Empty())

	used, _, _, _ := p.Stats()
	assert.Equal(t, 0, used)
}

func TestQueueFIFO(t *testing.T) {
	p := NewPool(4)
	var q Queue
	assert.True(t, q.Empty())

	first := p.Allocate()
	require.True(t, first.Cat("first"))
	second := p.Allocate()
	require.True(t, second.Cat("second"))
	q.Append(first)
	q.Append(second)

	assert.Equal(t, len("firstsecond"), q.Pending())
	assert.Equal(t, "first", string(q.Peek()))
	q.Advance(len("first"))
	assert.Equal(t, "second", string(q.Peek()))
	q.Advance(len("second"))
	assert.True(t, q.Empty())

	used, _, _, _ := p.Stats()
	assert.Equal(t, 0, used)
}

func TestSharedChainDrainedAtDifferentPaces(t *testing.T) {
	p := NewPool(2)
	b := p.Allocate()
	require.True(t, b.Cat("shared"))
	b.SetReferences(2)

	var fast, slow Queue
	fast.Append(b)
	slow.Append(b)

	fast.Advance(len("shared"))
	assert.Equal(t, "shared", string(slow.Peek()), "slow queue must still see the full message")

	used, _, _, _ := p.Stats()
	assert.Equal(t, 1, used, "node stays allocated until the slow queue releases")

	slow.Advance(len("shared"))
	used, _, _, _ = p.Stats()
	assert.Equal(t, 0, used)
}

func TestQueueClearReleasesEverything(t *testing.T) {
	p := NewPool(4)
	var q Queue
	for i := 0; i < 3; i++ {
		b := p.Allocate()
		require.True(t, b.Cat("msg"))
		q.Append(b)
	}
	q.Clear()
	used, _, _, _ := p.Stats()
	assert.Equal(t, 0, used)
}
