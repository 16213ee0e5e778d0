package packet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketUIDs(t *testing.T) {
	p := NewPacket()
	q := NewPacketSize(10)
	assert.Equal(t, p.UID()+1, q.UID())
	assert.Equal(t, q.UID(), q.Copy().UID())
	assert.Equal(t, q.UID(), q.CreateFragment(2, 3).UID())
}

func TestPacketData(t *testing.T) {
	p := NewPacketFromBytes([]byte("hello world"))
	require.Equal(t, uint32(11), p.Size())
	assert.Equal(t, []byte("hello world"), p.PeekData())

	dst := make([]byte, 5)
	assert.Equal(t, 5, p.CopyDataTo(dst))
	assert.Equal(t, []byte("hello"), dst)

	var sb bytes.Buffer
	require.NoError(t, p.CopyData(&sb, 100))
	assert.Equal(t, "hello world", sb.String())

	frag := p.CreateFragment(6, 5)
	assert.Equal(t, []byte("world"), frag.PeekData())
	assert.Panics(t, func() { p.CreateFragment(6, 6) })

	p.RemoveAtStart(6)
	p.AddAtEnd(NewPacketFromBytes([]byte("!")))
	assert.Equal(t, []byte("world!"), p.PeekData())
	p.AddPaddingAtEnd(2)
	assert.Equal(t, []byte("world!\x00\x00"), p.PeekData())
	p.RemoveAtEnd(3)
	assert.Equal(t, []byte("world"), p.PeekData())
}

func TestPacketHeaderRoundTrip(t *testing.T) {
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	p.AddTrailer(&sizedTrailer{size: 5})
	require.Equal(t, uint32(18), p.Size())

	peeked := sizedHeader{size: 3}
	assert.Equal(t, uint32(3), p.PeekHeader(&peeked))
	assert.Equal(t, uint32(18), p.Size())

	h := sizedHeader{size: 3}
	assert.Equal(t, uint32(3), p.RemoveHeader(&h))
	assert.False(t, h.bad)
	tr := sizedTrailer{size: 5}
	assert.Equal(t, uint32(5), p.PeekTrailer(&tr))
	assert.Equal(t, uint32(5), p.RemoveTrailer(&tr))
	assert.False(t, tr.bad)
	assert.Equal(t, make([]byte, 10), p.PeekData())
}

func TestPrintTags(t *testing.T) {
	p := NewPacketSize(10)
	p.AddByteTag(&numberTag{n: 1, value: 7})
	p.AddByteTagRange(&numberTag{n: 2, value: 8}, 2, 4)
	var sb strings.Builder
	p.PrintByteTags(&sb)
	assert.Equal(t, "test::Tag1 [0-10] value=7 test::Tag2 [2-4] value=8", sb.String())

	p.AddPacketTag(&numberTag{n: 1, value: 10})
	p.AddPacketTag(&numberTag{n: 2, value: 20})
	sb.Reset()
	p.PrintPacketTags(&sb)
	assert.Equal(t, "test::Tag2 value=20 test::Tag1 value=10", sb.String())
}

func TestPacketSerialize(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketFromBytes([]byte{1, 2, 3, 4, 5, 6, 7})
	p.AddHeader(&sizedHeader{size: 3})
	p.AddTrailer(&sizedTrailer{size: 2})
	nix := NewNixVector()
	nix.AddNeighborIndex(5, 3)
	nix.AddNeighborIndex(1, 1)
	p.SetNixVector(nix)

	wire := make([]byte, p.SerializedSize())
	require.True(t, p.Serialize(wire))
	assert.False(t, p.Serialize(wire[:len(wire)-1]))

	q, ok := NewPacketFromSerialized(wire)
	require.True(t, ok)
	assert.Equal(t, p.UID(), q.UID())
	assert.Equal(t, p.PeekData(), q.PeekData())
	assert.Equal(t, chunks(p), chunks(q))
	assert.Equal(t, p.String(), q.String())
	require.NotNil(t, q.NixVector())
	assert.Equal(t, uint32(1), q.NixVector().ExtractNeighborIndex(1))
	assert.Equal(t, uint32(5), q.NixVector().ExtractNeighborIndex(3))

	_, ok = NewPacketFromSerialized(wire[:len(wire)-4])
	assert.False(t, ok)
	_, ok = NewPacketFromSerialized(append(wire, 0, 0, 0, 0))
	assert.False(t, ok)
}

func TestPacketSerializeWithoutRoute(t *testing.T) {
	p := NewPacketFromBytes([]byte("abc"))
	wire := make([]byte, p.SerializedSize())
	require.True(t, p.Serialize(wire))
	q, ok := NewPacketFromSerialized(wire)
	require.True(t, ok)
	assert.Nil(t, q.NixVector())
	assert.Equal(t, []byte("abc"), q.PeekData())
}

func TestFragmentsCarryOwnRoute(t *testing.T) {
	p := NewPacketSize(10)
	nix := NewNixVector()
	nix.AddNeighborIndex(2, 2)
	nix.AddNeighborIndex(1, 2)
	p.SetNixVector(nix)

	frag := p.CreateFragment(0, 5)
	require.NotNil(t, frag.NixVector())
	assert.NotSame(t, nix, frag.NixVector())
	assert.NotSame(t, nix, p.Copy().NixVector())

	frag.NixVector().ExtractNeighborIndex(2)
	assert.Equal(t, uint32(2), frag.NixVector().RemainingBits())
	assert.Equal(t, uint32(4), p.NixVector().RemainingBits())

	p.NixVector().ExtractNeighborIndex(2)
	assert.Equal(t, uint32(2), frag.NixVector().RemainingBits())

	assert.Nil(t, NewPacketSize(10).CreateFragment(2, 3).NixVector())
}
