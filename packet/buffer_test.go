package packet

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contents(b *Buffer) []byte {
	out := make([]byte, b.Size())
	b.CopyDataTo(out)
	return out
}

func TestBufferGrowAndShrink(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 0)
	b.AddAtStart(2)
	it := b.Begin()
	it.WriteU8(0x11)
	it.WriteU8(0x22)
	b.AddAtEnd(2)
	it = b.End()
	it.Prev(2)
	it.WriteU16(0x4433)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, contents(b))

	b.RemoveAtStart(1)
	assert.Equal(t, []byte{0x22, 0x33, 0x44}, contents(b))
	b.RemoveAtEnd(1)
	assert.Equal(t, []byte{0x22, 0x33}, contents(b))
	b.RemoveAtEnd(10)
	assert.Zero(t, b.Size())
}

func TestBufferRemoveClampsHugeCounts(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 50)
	b.AddAtStart(4)
	b.AddAtEnd(4)
	b.RemoveAtStart(math.MaxUint32)
	assert.Zero(t, b.Size())
	assert.Equal(t, b.CurrentStartOffset(), b.CurrentEndOffset())

	b = NewBufferWith(NewAllocator(), 50)
	b.AddAtStart(4)
	b.RemoveAtEnd(math.MaxUint32)
	assert.Zero(t, b.Size())
	assert.Empty(t, contents(b))
}

func TestBufferZeroArea(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 100)
	b.AddAtStart(20)
	it := b.Begin()
	it.WriteU8Repeat(0xaa, 20)
	b.AddAtEnd(30)
	it = b.End()
	it.Prev(30)
	it.WriteU8Repeat(0xbb, 30)
	require.Equal(t, uint32(150), b.Size())

	want := append(append(bytes.Repeat([]byte{0xaa}, 20), make([]byte, 100)...), bytes.Repeat([]byte{0xbb}, 30)...)
	got := make([]byte, 0, 150)
	it = b.Begin()
	for !it.IsEnd() {
		got = append(got, it.ReadU8())
	}
	assert.Equal(t, want, got)

	partial := make([]byte, 25)
	assert.Equal(t, 25, b.CopyDataTo(partial))
	assert.Equal(t, want[:25], partial)

	it = b.Begin()
	it.Next(20)
	assert.Panics(t, func() { it.WriteU8(1) })

	// peeking materialises the zero area but keeps the contents
	assert.Equal(t, want, b.PeekData())
	it = b.Begin()
	it.Next(20)
	assert.NotPanics(t, func() { it.WriteU8(1) })
}

func TestBufferRemoveThroughZeroArea(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 10)
	b.AddAtStart(2)
	it := b.Begin()
	it.WriteU16(0xffff)
	b.AddAtEnd(2)
	it = b.End()
	it.Prev(2)
	it.WriteU16(0xeeee)

	b.RemoveAtStart(5)
	assert.Equal(t, append(make([]byte, 7), 0xee, 0xee), contents(b))
	b.RemoveAtEnd(3)
	assert.Equal(t, make([]byte, 6), contents(b))
}

func TestBufferCopyOnWrite(t *testing.T) {
	a := NewBufferWith(NewAllocator(), 0)
	a.AddAtEnd(8)
	it := a.Begin()
	it.Write([]byte{0, 1, 2, 3, 4, 5, 6, 7})

	b := a.Copy()
	b.RemoveAtEnd(4)
	b.AddAtEnd(1)
	it = b.End()
	it.Prev(1)
	it.WriteU8(0xff)

	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, contents(a))
	assert.Equal(t, []byte{0, 1, 2, 3, 0xff}, contents(b))

	c := a.Copy()
	c.AddAtStart(1)
	it = c.Begin()
	it.WriteU8(0xfe)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, contents(a))
	assert.Equal(t, []byte{0xfe, 0, 1, 2, 3, 4, 5, 6, 7}, contents(c))

	a.Release()
	assert.Panics(t, func() { a.Begin() })
	assert.Equal(t, []byte{0, 1, 2, 3, 0xff}, contents(b))
}

func TestBufferAddBufferAtEnd(t *testing.T) {
	alloc := NewAllocator()
	a := NewBufferWith(alloc, 10)
	b := NewBufferWith(alloc, 20)
	b.AddAtEnd(2)
	it := b.End()
	it.Prev(2)
	it.Write([]byte{7, 8})

	a.AddBufferAtEnd(b)
	assert.Equal(t, append(make([]byte, 30), 7, 8), contents(a))

	c := NewBufferWith(alloc, 0)
	c.AddAtStart(3)
	it = c.Begin()
	it.Write([]byte{1, 2, 3})
	c.AddBufferAtEnd(c)
	assert.Equal(t, []byte{1, 2, 3, 1, 2, 3}, contents(c))
}

func TestBufferFragment(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 0)
	b.AddAtStart(6)
	it := b.Begin()
	it.Write([]byte("abcdef"))
	frag := b.CreateFragment(2, 3)
	assert.Equal(t, []byte("cde"), contents(frag))
	assert.Panics(t, func() { b.CreateFragment(4, 3) })
}

func TestBufferSerialize(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 100)
	b.AddAtStart(20)
	it := b.Begin()
	it.WriteU8Repeat(0xaa, 20)
	b.AddAtEnd(30)
	it = b.End()
	it.Prev(30)
	it.WriteU8Repeat(0xbb, 30)

	require.Equal(t, uint32(64), b.SerializedSize())
	assert.False(t, b.Serialize(make([]byte, 63)))
	wire := make([]byte, 64)
	require.True(t, b.Serialize(wire))

	out := new(Buffer)
	require.True(t, out.Deserialize(wire))
	assert.Equal(t, contents(b), contents(out))
	assert.Equal(t, uint32(100), out.zeroSize())

	assert.False(t, new(Buffer).Deserialize(wire[:60]))
	assert.False(t, new(Buffer).Deserialize(wire[:4]))
}

func TestIteratorByteOrder(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 0)
	b.AddAtStart(14)
	it := b.Begin()
	it.WriteHtonU16(0x0102)
	it.WriteHtonU32(0x03040506)
	it.WriteHtolsbU64(0x0f0e0d0c0b0a0908)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 8, 9, 10, 11, 12, 13, 14, 15}, contents(b))

	it = b.Begin()
	assert.Equal(t, uint16(0x0102), it.ReadNtohU16())
	assert.Equal(t, uint32(0x03040506), it.ReadNtohU32())
	assert.Equal(t, uint64(0x0f0e0d0c0b0a0908), it.ReadLsbtohU64())
	assert.True(t, it.IsEnd())
	assert.Panics(t, func() { it.ReadU8() })

	it = b.Begin()
	assert.Equal(t, uint16(0x0201), it.ReadU16())
	assert.Equal(t, uint32(2), it.DistanceFrom(b.Begin()))
}

func TestIteratorChecksum(t *testing.T) {
	b := NewBufferWith(NewAllocator(), 0)
	b.AddAtStart(8)
	it := b.Begin()
	it.Write([]byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7})
	it = b.Begin()
	assert.Equal(t, uint16(0x0d22), it.CalculateIPChecksum(8, 0))
}

func TestAllocatorRecycles(t *testing.T) {
	alloc := NewAllocator()
	b := NewBufferWith(alloc, 0)
	assert.True(t, b.AddAtStart(64))
	b.Release()
	assert.Equal(t, 1, alloc.FreeBlocks())
	assert.Equal(t, uint32(64), alloc.RecommendedStart())

	// the recycled block leaves room for headers in front
	b = NewBufferWith(alloc, 10)
	assert.False(t, b.AddAtStart(20))
	assert.Zero(t, alloc.FreeBlocks())

	alloc.Reset()
	assert.Zero(t, alloc.RecommendedStart())
}
