package packet

// tag_buffer.go holds TagBuffer, a little-endian cursor over a fixed byte slice.
// Tags serialize themselves through it, and the serialized forms of buffers,
// metadata and packets are built with it.

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TagBuffer reads and writes fixed width values over a byte slice
type TagBuffer struct {
	buf []byte
	pos uint32
	end uint32
}

// NewTagBuffer returns a cursor at the start of buf
func NewTagBuffer(buf []byte) *TagBuffer {
	return &TagBuffer{buf: buf, end: uint32(len(buf))}
}

func (tb *TagBuffer) claim(n uint32) []byte {
	if n > tb.end-tb.pos {
		panic(fmt.Sprintf("tag buffer overrun: %d bytes wanted, %d left", n, tb.end-tb.pos))
	}
	b := tb.buf[tb.pos : tb.pos+n]
	tb.pos += n
	return b
}

// Remaining returns the number of bytes between the cursor and the end
func (tb *TagBuffer) Remaining() uint32 {
	return tb.end - tb.pos
}

// Offset returns the number of bytes already read or written
func (tb *TagBuffer) Offset() uint32 {
	return tb.pos
}

// TrimAtEnd makes the last trim bytes unavailable
func (tb *TagBuffer) TrimAtEnd(trim uint32) {
	if trim > tb.end-tb.pos {
		panic("tag buffer trimmed past its cursor")
	}
	tb.end -= trim
}

// Skip moves the cursor n bytes forward
func (tb *TagBuffer) Skip(n uint32) {
	tb.claim(n)
}

func (tb *TagBuffer) WriteU8(v uint8) {
	tb.claim(1)[0] = v
}

func (tb *TagBuffer) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(tb.claim(2), v)
}

func (tb *TagBuffer) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(tb.claim(4), v)
}

func (tb *TagBuffer) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(tb.claim(8), v)
}

// WriteDouble writes the IEEE 754 bits of v
func (tb *TagBuffer) WriteDouble(v float64) {
	tb.WriteU64(math.Float64bits(v))
}

func (tb *TagBuffer) Write(src []byte) {
	copy(tb.claim(uint32(len(src))), src)
}

// WriteZeros writes n zero bytes
func (tb *TagBuffer) WriteZeros(n uint32) {
	clear(tb.claim(n))
}

func (tb *TagBuffer) ReadU8() uint8 {
	return tb.claim(1)[0]
}

func (tb *TagBuffer) ReadU16() uint16 {
	return binary.LittleEndian.Uint16(tb.claim(2))
}

func (tb *TagBuffer) ReadU32() uint32 {
	return binary.LittleEndian.Uint32(tb.claim(4))
}

func (tb *TagBuffer) ReadU64() uint64 {
	return binary.LittleEndian.Uint64(tb.claim(8))
}

func (tb *TagBuffer) ReadDouble() float64 {
	return math.Float64frombits(tb.ReadU64())
}

// Read returns the next n bytes.  The slice aliases the underlying storage
func (tb *TagBuffer) Read(n uint32) []byte {
	return tb.claim(n)
}

// CopyFrom writes the unread bytes of o
func (tb *TagBuffer) CopyFrom(o TagBuffer) {
	tb.Write(o.buf[o.pos:o.end])
}
