package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteTagsFollowFragments(t *testing.T) {
	p := NewPacketSize(1000)
	p.AddByteTag(&numberTag{n: 1})
	assert.Equal(t, []byteTagSpan{span(1, 0, 1000)}, byteTagSpans(p))

	frag0 := p.CreateFragment(0, 10)
	frag1 := p.CreateFragment(10, 90)
	frag2 := p.CreateFragment(100, 900)
	frag0.AddByteTag(&numberTag{n: 2})
	assert.Equal(t, []byteTagSpan{span(1, 0, 10), span(2, 0, 10)}, byteTagSpans(frag0))
	frag1.AddByteTag(&numberTag{n: 3})
	assert.Equal(t, []byteTagSpan{span(1, 0, 90), span(3, 0, 90)}, byteTagSpans(frag1))
	frag2.AddByteTag(&numberTag{n: 4})
	assert.Equal(t, []byteTagSpan{span(1, 0, 900), span(4, 0, 900)}, byteTagSpans(frag2))

	frag1.AddAtEnd(frag2)
	assert.Equal(t, []byteTagSpan{span(1, 0, 90), span(3, 0, 90), span(1, 90, 990), span(4, 90, 990)},
		byteTagSpans(frag1))
	assert.Equal(t, []byteTagSpan{span(1, 0, 900), span(4, 0, 900)}, byteTagSpans(frag2))

	frag0.AddAtEnd(frag1)
	assert.Equal(t, []byteTagSpan{
		span(1, 0, 10), span(2, 0, 10),
		span(1, 10, 100), span(3, 10, 100),
		span(1, 100, 1000), span(4, 100, 1000),
	}, byteTagSpans(frag0))

	// the original never saw the tags its fragments were given
	assert.Equal(t, []byteTagSpan{span(1, 0, 1000)}, byteTagSpans(p))
}

func TestByteTagsAndHeaders(t *testing.T) {
	p := NewPacketSize(100)
	p.AddByteTag(&numberTag{n: 1})
	p.AddHeader(&sizedHeader{size: 10})
	assert.Equal(t, []byteTagSpan{span(1, 10, 110)}, byteTagSpans(p))
	h := sizedHeader{size: 10}
	p.RemoveHeader(&h)
	assert.False(t, h.bad)
	assert.Equal(t, []byteTagSpan{span(1, 0, 100)}, byteTagSpans(p))

	p = NewPacketSize(100)
	p.AddByteTag(&numberTag{n: 1})
	p.AddTrailer(&sizedTrailer{size: 10})
	assert.Equal(t, []byteTagSpan{span(1, 0, 100)}, byteTagSpans(p))

	p = NewPacket()
	p.AddHeader(&sizedHeader{size: 156})
	p.AddByteTag(&numberTag{n: 1})
	p.RemoveAtStart(120)
	assert.Equal(t, []byteTagSpan{span(1, 0, 36)}, byteTagSpans(p))

	p = NewPacketSize(1000)
	p.AddByteTag(&numberTag{n: 1})
	p.AddHeader(&sizedHeader{size: 2})
	assert.Equal(t, []byteTagSpan{span(1, 2, 1002)}, byteTagSpans(p))
	p.RemoveAtStart(1)
	assert.Equal(t, []byteTagSpan{span(1, 1, 1001)}, byteTagSpans(p))
}

func TestByteTagsEmptyRanges(t *testing.T) {
	p := NewPacketSize(0)
	p.AddByteTag(&numberTag{n: 1})
	assert.Empty(t, byteTagSpans(p))

	p = NewPacketSize(1000)
	p.AddByteTag(&numberTag{n: 1})
	p.RemoveAtStart(1000)
	assert.Empty(t, byteTagSpans(p))

	o := NewPacketSize(10)
	o.AddByteTag(&numberTag{n: 2})
	p.AddAtEnd(o)
	assert.Equal(t, []byteTagSpan{span(2, 0, 10)}, byteTagSpans(p))
}

func TestByteTagsClippedByNewBytes(t *testing.T) {
	for _, headerSize := range []uint32{50, 25} {
		p := NewPacket()
		p.AddHeader(&sizedHeader{size: 100})
		p.AddByteTag(&numberTag{n: 1})
		p.RemoveAtStart(50)
		p.AddHeader(&sizedHeader{size: headerSize})
		assert.Equal(t, []byteTagSpan{span(1, int32(headerSize), int32(headerSize)+50)}, byteTagSpans(p))
	}

	grow := []func(p *Packet){
		func(p *Packet) { p.AddTrailer(&sizedTrailer{size: 50}) },
		func(p *Packet) { p.AddTrailer(&sizedTrailer{size: 25}) },
		func(p *Packet) { p.AddPaddingAtEnd(50) },
	}
	for _, fn := range grow {
		p := NewPacket()
		p.AddTrailer(&sizedTrailer{size: 100})
		p.AddByteTag(&numberTag{n: 1})
		p.RemoveAtEnd(50)
		fn(p)
		assert.Equal(t, []byteTagSpan{span(1, 0, 50)}, byteTagSpans(p))
	}
}

func TestByteTagValues(t *testing.T) {
	p := NewPacketSize(20)
	p.AddByteTagRange(&numberTag{n: 7, value: 42}, 5, 15)
	assert.Panics(t, func() { p.AddByteTagRange(&numberTag{n: 7}, 10, 5) })

	found := numberTag{n: 7}
	require.True(t, p.FindFirstMatchingByteTag(&found))
	assert.Equal(t, uint32(42), found.value)
	assert.False(t, p.FindFirstMatchingByteTag(&numberTag{n: 8}))

	p.RemoveAllByteTags()
	assert.Empty(t, byteTagSpans(p))
}

func TestPacketTags(t *testing.T) {
	p := NewPacketSize(10)
	p.AddPacketTag(&numberTag{n: 1, value: 10})
	p.AddPacketTag(&numberTag{n: 2, value: 20})
	assert.Panics(t, func() { p.AddPacketTag(&numberTag{n: 1}) })
	assert.Panics(t, func() { p.AddPacketTag(bulkyTag{}) })

	cp := p.Copy()
	removed := numberTag{n: 2}
	require.True(t, cp.RemovePacketTag(&removed))
	assert.Equal(t, uint32(20), removed.value)
	assert.False(t, cp.PeekPacketTag(&numberTag{n: 2}))

	kept := numberTag{n: 2}
	require.True(t, p.PeekPacketTag(&kept))
	assert.Equal(t, uint32(20), kept.value)

	cp.ReplacePacketTag(&numberTag{n: 1, value: 11})
	got := numberTag{n: 1}
	require.True(t, cp.PeekPacketTag(&got))
	assert.Equal(t, uint32(11), got.value)
	require.True(t, p.PeekPacketTag(&got))
	assert.Equal(t, uint32(10), got.value)

	cp.ReplacePacketTag(&numberTag{n: 3, value: 30})
	var types []TypeID
	cp.PacketTags(func(item PacketTagItem) bool {
		types = append(types, item.TypeID())
		return true
	})
	assert.Equal(t, []TypeID{(&numberTag{n: 3}).TypeID(), (&numberTag{n: 1}).TypeID()}, types)

	p.RemoveAllPacketTags()
	assert.False(t, p.PeekPacketTag(&numberTag{n: 1}))
	require.True(t, cp.PeekPacketTag(&got))
	assert.Equal(t, uint32(11), got.value)
	assert.False(t, p.RemovePacketTag(&numberTag{n: 5}))
}

func TestPacketTagListSharing(t *testing.T) {
	var l PacketTagList
	l.Add(&numberTag{n: 1, value: 1})
	l.Add(&numberTag{n: 2, value: 2})
	l.Add(&numberTag{n: 3, value: 3})
	cp := l.Copy()

	// removing the deepest tag from the copy unshares only the path to it
	require.True(t, cp.Remove(&numberTag{n: 1}))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 2, cp.Len())
	assert.NotSame(t, l.head, cp.head)

	l.Replace(&numberTag{n: 3, value: 33})
	v := numberTag{n: 3}
	require.True(t, l.Peek(&v))
	assert.Equal(t, uint32(33), v.value)
	require.True(t, cp.Peek(&v))
	assert.Equal(t, uint32(3), v.value)

	l.RemoveAll()
	assert.Zero(t, l.Len())
	assert.Equal(t, 2, cp.Len())
}
