package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNixVectorLastInFirstOut(t *testing.T) {
	nv := NewNixVector()
	nv.AddNeighborIndex(1, 1)
	nv.AddNeighborIndex(2, 2)
	assert.Equal(t, "(3 bits) 101", nv.String())
	nv.AddNeighborIndex(5, 3)
	assert.Equal(t, uint32(6), nv.RemainingBits())

	assert.Equal(t, uint32(5), nv.ExtractNeighborIndex(3))
	assert.Equal(t, uint32(2), nv.ExtractNeighborIndex(2))
	assert.Equal(t, uint32(1), nv.ExtractNeighborIndex(1))
	assert.Equal(t, uint32(0), nv.RemainingBits())
}

func TestNixVectorAcrossWords(t *testing.T) {
	nv := NewNixVector()
	nv.AddNeighborIndex(0x2aaaaaaa, 30)
	nv.AddNeighborIndex(0x1f, 5)
	nv.AddNeighborIndex(0xdeadbeef, 32)
	assert.Equal(t, uint32(67), nv.RemainingBits())

	cp := nv.Copy()
	assert.Equal(t, uint32(0xdeadbeef), nv.ExtractNeighborIndex(32))
	assert.Equal(t, uint32(0x1f), nv.ExtractNeighborIndex(5))
	assert.Equal(t, uint32(0x2aaaaaaa), nv.ExtractNeighborIndex(30))
	assert.Equal(t, uint32(67), cp.RemainingBits())
}

func TestNixVectorStringSeparatesWords(t *testing.T) {
	nv := NewNixVector()
	nv.AddNeighborIndex(0, 32)
	nv.AddNeighborIndex(3, 2)
	assert.Equal(t, "(34 bits) 11--"+strings.Repeat("0", 32), nv.String())
}

func TestNixVectorPanics(t *testing.T) {
	nv := NewNixVector()
	assert.Panics(t, func() { nv.AddNeighborIndex(1, 0) })
	assert.Panics(t, func() { nv.AddNeighborIndex(1, 33) })
	nv.AddNeighborIndex(1, 2)
	assert.Panics(t, func() { nv.ExtractNeighborIndex(3) })
}

func TestBitCount(t *testing.T) {
	cases := map[uint32]uint32{0: 1, 1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 256: 8, 257: 9}
	for neighbors, bits := range cases {
		assert.Equal(t, bits, BitCount(neighbors), "neighbors %d", neighbors)
	}
}

func TestNixVectorSerialize(t *testing.T) {
	nv := NewNixVector()
	nv.AddNeighborIndex(0x12345, 20)
	nv.AddNeighborIndex(0x3ff, 15)
	nv.ExtractNeighborIndex(15)
	require.Equal(t, uint32(20), nv.SerializedSize())

	wire := make([]byte, nv.SerializedSize())
	require.True(t, nv.Serialize(wire))
	assert.False(t, nv.Serialize(wire[:19]))

	out := NewNixVector()
	require.True(t, out.Deserialize(wire))
	assert.Equal(t, nv.String(), out.String())
	assert.Equal(t, uint32(0x12345), out.ExtractNeighborIndex(20))

	assert.False(t, NewNixVector().Deserialize(wire[:12]))
	assert.False(t, NewNixVector().Deserialize(wire[:18]))
}
