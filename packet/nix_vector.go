package packet

// nix_vector.go holds NixVector, the source route a packet may carry.  A route
// is a sequence of neighbor indices, each packed into as few bits as the
// number of neighbors at that hop requires.  Indices are added walking the
// route backward from the destination and extracted walking it forward, so
// the most recently added index is the first one extracted.

import (
	"fmt"
	"strings"
)

// NixVector is a packed sequence of neighbor indices
type NixVector struct {
	words          []uint32
	used           uint32
	currentBitSize uint32
	totalBitSize   uint32
}

// NewNixVector returns an empty vector
func NewNixVector() *NixVector {
	nv := new(NixVector)
	nv.words = []uint32{0}
	return nv
}

// Copy returns an independent duplicate of nv
func (nv *NixVector) Copy() *NixVector {
	cp := *nv
	cp.words = append([]uint32(nil), nv.words...)
	return &cp
}

// AddNeighborIndex appends the low bits of index as the next entry
func (nv *NixVector) AddNeighborIndex(index uint32, bits uint32) {
	if bits == 0 || bits > 32 {
		panic(fmt.Errorf("a nix vector entry has from 1 to 32 bits, not %d", bits))
	}
	index &= uint32(uint64(1)<<bits - 1)
	last := len(nv.words) - 1
	if nv.currentBitSize+bits > 32 {
		if nv.currentBitSize == 32 {
			nv.words = append(nv.words, index)
			nv.currentBitSize = bits
		} else {
			// split the entry across the end of this word and the start of a new one
			nv.words[last] |= index << nv.currentBitSize
			nv.words = append(nv.words, index>>(32-nv.currentBitSize))
			nv.currentBitSize = bits - (32 - nv.currentBitSize)
		}
	} else {
		nv.words[last] |= index << nv.currentBitSize
		nv.currentBitSize += bits
	}
	nv.totalBitSize += bits
}

// ExtractNeighborIndex removes and returns the next entry, which is bits wide
func (nv *NixVector) ExtractNeighborIndex(bits uint32) uint32 {
	remaining := nv.RemainingBits()
	if bits == 0 || bits > 32 {
		panic(fmt.Errorf("a nix vector entry has from 1 to 32 bits, not %d", bits))
	}
	if bits > remaining {
		panic(fmt.Errorf("extracting %d bits from a nix vector with %d remaining", bits, remaining))
	}
	v := nv.bitsAt(remaining-bits, bits)
	nv.used += bits
	return v
}

// bitsAt returns n bits starting at bit position lo
func (nv *NixVector) bitsAt(lo, n uint32) uint32 {
	word := lo / 32
	off := lo % 32
	v := uint64(nv.words[word]) >> off
	if off+n > 32 {
		v |= uint64(nv.words[word+1]) << (32 - off)
	}
	return uint32(v & (uint64(1)<<n - 1))
}

// RemainingBits returns the number of bits not yet extracted
func (nv *NixVector) RemainingBits() uint32 {
	return nv.totalBitSize - nv.used
}

// BitCount returns the number of bits needed to encode an index among numNeighbors neighbors
func BitCount(numNeighbors uint32) uint32 {
	if numNeighbors < 2 {
		return 1
	}
	count := uint32(0)
	for n := numNeighbors - 1; n != 0; n >>= 1 {
		count++
	}
	return count
}

// SerializedSize is the number of bytes Serialize writes
func (nv *NixVector) SerializedSize() uint32 {
	return 4 + 4 + 4 + 4*uint32(len(nv.words))
}

// Serialize writes used, the bit count of the last word, the total bit count,
// and then the words, all little-endian.  The return is false if dst is too small
func (nv *NixVector) Serialize(dst []byte) bool {
	if uint32(len(dst)) < nv.SerializedSize() {
		return false
	}
	w := NewTagBuffer(dst)
	w.WriteU32(nv.used)
	w.WriteU32(nv.currentBitSize)
	w.WriteU32(nv.totalBitSize)
	for _, word := range nv.words {
		w.WriteU32(word)
	}
	return true
}

// Deserialize replaces nv with what Serialize wrote into src.  The return is
// false if src is not a complete and consistent serialized vector
func (nv *NixVector) Deserialize(src []byte) bool {
	if len(src) < 16 || len(src)%4 != 0 {
		return false
	}
	r := NewTagBuffer(src)
	used := r.ReadU32()
	current := r.ReadU32()
	total := r.ReadU32()
	words := make([]uint32, 0, r.Remaining()/4)
	for r.Remaining() > 0 {
		words = append(words, r.ReadU32())
	}
	if used > total || current > 32 || total > 32*uint32(len(words)) {
		return false
	}
	nv.used = used
	nv.currentBitSize = current
	nv.totalBitSize = total
	nv.words = words
	return true
}

// String shows the unextracted bits, most recently added first
func (nv *NixVector) String() string {
	var sb strings.Builder
	remaining := nv.RemainingBits()
	fmt.Fprintf(&sb, "(%d bits) ", remaining)
	for i := remaining; i > 0; i-- {
		if nv.bitsAt(i-1, 1) == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
		if (i-1)%32 == 0 && i > 1 {
			sb.WriteString("--")
		}
	}
	return sb.String()
}
