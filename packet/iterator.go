package packet

// iterator.go holds Iterator, the cursor through which headers and trailers
// read and write the bytes of a Buffer.  An iterator snapshots the buffer's
// offsets when created; it is invalidated by any change to the buffer's size.

import (
	"fmt"
)

// Iterator is a position within a Buffer
type Iterator struct {
	block     *bufferData
	zeroStart uint32
	zeroEnd   uint32
	dataStart uint32
	dataEnd   uint32
	current   uint32
}

// Next moves forward delta bytes
func (it *Iterator) Next(delta uint32) {
	if it.current+delta > it.dataEnd {
		panic("iterator moved after end of buffer")
	}
	it.current += delta
}

// Prev moves backward delta bytes
func (it *Iterator) Prev(delta uint32) {
	if delta > it.current-it.dataStart {
		panic("iterator moved before start of buffer")
	}
	it.current -= delta
}

// DistanceFrom returns the number of bytes between it and o, which must be on the same buffer
func (it *Iterator) DistanceFrom(o Iterator) uint32 {
	if it.block != o.block {
		panic("distance between iterators of different buffers")
	}
	if it.current >= o.current {
		return it.current - o.current
	}
	return o.current - it.current
}

// IsEnd reports whether the iterator is one past the last byte
func (it *Iterator) IsEnd() bool {
	return it.current == it.dataEnd
}

// IsStart reports whether the iterator is on the first byte
func (it *Iterator) IsStart() bool {
	return it.current == it.dataStart
}

// Size returns the size of the underlying buffer when the iterator was made
func (it *Iterator) Size() uint32 {
	return it.dataEnd - it.dataStart
}

// RemainingSize returns the number of bytes from the iterator to the end
func (it *Iterator) RemainingSize() uint32 {
	return it.dataEnd - it.current
}

func (it *Iterator) zeroSize() uint32 {
	return it.zeroEnd - it.zeroStart
}

// writable reports whether the byte at virtual offset i holds real storage
func (it *Iterator) writable(i uint32) bool {
	return i >= it.dataStart && i < it.dataEnd && !(i >= it.zeroStart && i < it.zeroEnd)
}

func (it *Iterator) writeError() string {
	switch {
	case it.current < it.dataStart:
		return fmt.Sprintf("write at %d before start of buffer [%d, %d)", it.current, it.dataStart, it.dataEnd)
	case it.current >= it.dataEnd:
		return fmt.Sprintf("write at %d after end of buffer [%d, %d)", it.current, it.dataStart, it.dataEnd)
	default:
		return fmt.Sprintf("write at %d inside payload (zero) area [%d, %d)", it.current, it.zeroStart, it.zeroEnd)
	}
}

func (it *Iterator) readError() string {
	if it.current < it.dataStart {
		return fmt.Sprintf("read at %d before start of buffer [%d, %d)", it.current, it.dataStart, it.dataEnd)
	}
	return fmt.Sprintf("read at %d after end of buffer [%d, %d)", it.current, it.dataStart, it.dataEnd)
}

func (it *Iterator) physical(i uint32) uint32 {
	if i < it.zeroStart {
		return i
	}
	return i - it.zeroSize()
}

// WriteU8 writes one byte and advances
func (it *Iterator) WriteU8(v uint8) {
	if !it.writable(it.current) {
		panic(it.writeError())
	}
	it.block.bytes[it.physical(it.current)] = v
	it.current++
}

// WriteU8Repeat writes length copies of v
func (it *Iterator) WriteU8Repeat(v uint8, length uint32) {
	for i := uint32(0); i < length; i++ {
		it.WriteU8(v)
	}
}

// WriteU16 writes v in host (little-endian) order
func (it *Iterator) WriteU16(v uint16) {
	it.WriteU8(uint8(v))
	it.WriteU8(uint8(v >> 8))
}

// WriteU32 writes v in host (little-endian) order
func (it *Iterator) WriteU32(v uint32) {
	it.WriteU16(uint16(v))
	it.WriteU16(uint16(v >> 16))
}

// WriteU64 writes v in host (little-endian) order
func (it *Iterator) WriteU64(v uint64) {
	it.WriteU32(uint32(v))
	it.WriteU32(uint32(v >> 32))
}

// WriteHtolsbU16 writes v least significant byte first
func (it *Iterator) WriteHtolsbU16(v uint16) { it.WriteU16(v) }

// WriteHtolsbU32 writes v least significant byte first
func (it *Iterator) WriteHtolsbU32(v uint32) { it.WriteU32(v) }

// WriteHtolsbU64 writes v least significant byte first
func (it *Iterator) WriteHtolsbU64(v uint64) { it.WriteU64(v) }

// WriteHtonU16 writes v in network (big-endian) order
func (it *Iterator) WriteHtonU16(v uint16) {
	it.WriteU8(uint8(v >> 8))
	it.WriteU8(uint8(v))
}

// WriteHtonU32 writes v in network (big-endian) order
func (it *Iterator) WriteHtonU32(v uint32) {
	it.WriteHtonU16(uint16(v >> 16))
	it.WriteHtonU16(uint16(v))
}

// WriteHtonU64 writes v in network (big-endian) order
func (it *Iterator) WriteHtonU64(v uint64) {
	it.WriteHtonU32(uint32(v >> 32))
	it.WriteHtonU32(uint32(v))
}

// Write copies src into the buffer and advances.  Every target byte must be outside the zero area
func (it *Iterator) Write(src []byte) {
	for i := range src {
		if !it.writable(it.current + uint32(i)) {
			probe := *it
			probe.current += uint32(i)
			panic(probe.writeError())
		}
	}
	for _, v := range src {
		it.WriteU8(v)
	}
}

// WriteFrom copies the bytes between start and end, iterators on another buffer
func (it *Iterator) WriteFrom(start, end Iterator) {
	if start.block != end.block || start.current > end.current {
		panic("source iterators do not delimit a range")
	}
	if start.block == it.block {
		panic("copying a buffer range onto itself")
	}
	size := end.current - start.current
	for i := uint32(0); i < size; i++ {
		if !it.writable(it.current + i) {
			probe := *it
			probe.current += i
			panic(probe.writeError())
		}
	}
	for i := uint32(0); i < size; i++ {
		it.WriteU8(start.ReadU8())
	}
}

// PeekU8 returns the byte at the iterator without advancing
func (it *Iterator) PeekU8() uint8 {
	v := it.ReadU8()
	it.current--
	return v
}

// ReadU8 reads one byte and advances.  Bytes of the zero area read as 0
func (it *Iterator) ReadU8() uint8 {
	if it.current < it.dataStart || it.current >= it.dataEnd {
		panic(it.readError())
	}
	var v uint8
	switch {
	case it.current < it.zeroStart:
		v = it.block.bytes[it.current]
	case it.current < it.zeroEnd:
		v = 0
	default:
		v = it.block.bytes[it.current-it.zeroSize()]
	}
	it.current++
	return v
}

// ReadU16 reads a value stored in host (little-endian) order
func (it *Iterator) ReadU16() uint16 {
	lo := uint16(it.ReadU8())
	hi := uint16(it.ReadU8())
	return lo | hi<<8
}

// ReadU32 reads a value stored in host (little-endian) order
func (it *Iterator) ReadU32() uint32 {
	lo := uint32(it.ReadU16())
	hi := uint32(it.ReadU16())
	return lo | hi<<16
}

// ReadU64 reads a value stored in host (little-endian) order
func (it *Iterator) ReadU64() uint64 {
	lo := uint64(it.ReadU32())
	hi := uint64(it.ReadU32())
	return lo | hi<<32
}

// ReadLsbtohU16 reads a value stored least significant byte first
func (it *Iterator) ReadLsbtohU16() uint16 { return it.ReadU16() }

// ReadLsbtohU32 reads a value stored least significant byte first
func (it *Iterator) ReadLsbtohU32() uint32 { return it.ReadU32() }

// ReadLsbtohU64 reads a value stored least significant byte first
func (it *Iterator) ReadLsbtohU64() uint64 { return it.ReadU64() }

// ReadNtohU16 reads a value stored in network (big-endian) order
func (it *Iterator) ReadNtohU16() uint16 {
	hi := uint16(it.ReadU8())
	lo := uint16(it.ReadU8())
	return hi<<8 | lo
}

// ReadNtohU32 reads a value stored in network (big-endian) order
func (it *Iterator) ReadNtohU32() uint32 {
	hi := uint32(it.ReadNtohU16())
	lo := uint32(it.ReadNtohU16())
	return hi<<16 | lo
}

// ReadNtohU64 reads a value stored in network (big-endian) order
func (it *Iterator) ReadNtohU64() uint64 {
	hi := uint64(it.ReadNtohU32())
	lo := uint64(it.ReadNtohU32())
	return hi<<32 | lo
}

// Read fills dst and advances
func (it *Iterator) Read(dst []byte) {
	for i := range dst {
		dst[i] = it.ReadU8()
	}
}

// CalculateIPChecksum computes the ones-complement Internet checksum of the
// next size bytes, starting from initial, and advances past them
func (it *Iterator) CalculateIPChecksum(size uint16, initial uint32) uint16 {
	sum := initial
	for j := 0; j < int(size/2); j++ {
		sum += uint32(it.ReadU16())
	}
	if size&1 != 0 {
		sum += uint32(it.ReadU8())
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
