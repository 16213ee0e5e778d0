package packet

// buffer.go holds Buffer, the byte store underneath a Packet.  A Buffer is a
// view onto a shared, reference counted block.  Its virtual byte range
// [start, end) contains a "zero area" [zeroAreaStart, zeroAreaEnd) that reads
// as zeros but occupies no storage, so a large synthetic payload costs nothing
// until somebody asks to see it.  Bytes before the zero area live at the same
// index in the block; bytes after it live zero-size places lower.
//
// Several views share a block until one of them needs to grow into space
// another view has already claimed (the block's dirty range); only then is the
// block copied.

import (
	"fmt"
	"io"
)

// Buffer is a copy-on-write byte sequence with a virtual zero area
type Buffer struct {
	data             *bufferData
	alloc            *Allocator
	start            uint32
	end              uint32
	zeroAreaStart    uint32
	zeroAreaEnd      uint32
	maxZeroAreaStart uint32
}

// NewBuffer returns an empty buffer on the default allocator
func NewBuffer() *Buffer {
	return NewBufferWith(defaultAllocator, 0)
}

// NewBufferSize returns a buffer holding zeroSize virtual zero bytes
func NewBufferSize(zeroSize uint32) *Buffer {
	return NewBufferWith(defaultAllocator, zeroSize)
}

// NewBufferWith returns a buffer holding zeroSize virtual zero bytes, with blocks from alloc
func NewBufferWith(alloc *Allocator, zeroSize uint32) *Buffer {
	if alloc == nil {
		alloc = defaultAllocator
	}
	b := new(Buffer)
	b.alloc = alloc
	b.initialize(zeroSize)
	return b
}

func (b *Buffer) initialize(zeroSize uint32) {
	b.data = b.alloc.create(0)
	b.start = min(b.data.size, b.alloc.recommendedStart)
	b.maxZeroAreaStart = b.start
	b.zeroAreaStart = b.start
	b.zeroAreaEnd = b.start + zeroSize
	b.end = b.zeroAreaEnd
	b.data.dirtyStart = b.start
	b.data.dirtyEnd = b.end
}

// Copy returns another view of the same bytes, sharing the block
func (b *Buffer) Copy() *Buffer {
	b.checkLive()
	cp := *b
	cp.data.count += 1
	return &cp
}

// Release gives up this view's claim on its block.  The buffer may not be used afterwards
func (b *Buffer) Release() {
	if b.data == nil {
		return
	}
	b.alloc.noteStart(b.maxZeroAreaStart)
	b.data.count -= 1
	if b.data.count == 0 {
		b.alloc.recycle(b.data)
	}
	b.data = nil
}

// moveFrom makes b the view o was, releasing b's old block.  o must not be used afterwards
func (b *Buffer) moveFrom(o *Buffer) {
	b.Release()
	*b = *o
	o.data = nil
}

func (b *Buffer) checkLive() {
	if b.data == nil {
		panic("use of a released buffer")
	}
}

// Size returns the number of bytes in the buffer, zero area included
func (b *Buffer) Size() uint32 {
	return b.end - b.start
}

func (b *Buffer) zeroSize() uint32 {
	return b.zeroAreaEnd - b.zeroAreaStart
}

// internalSize is the number of bytes of the block actually in use by the view
func (b *Buffer) internalSize() uint32 {
	return b.zeroAreaStart - b.start + b.end - b.zeroAreaEnd
}

// internalEnd is the block index one past the last byte in use by the view
func (b *Buffer) internalEnd() uint32 {
	return b.end - b.zeroSize()
}

// CurrentStartOffset returns the virtual offset of the first byte.  It changes
// whenever AddAtStart or AddAtEnd reports a reallocation
func (b *Buffer) CurrentStartOffset() int32 {
	return int32(b.start)
}

// CurrentEndOffset returns the virtual offset one past the last byte
func (b *Buffer) CurrentEndOffset() int32 {
	return int32(b.end)
}

// AddAtStart grows the buffer by n bytes in front.  The new bytes are
// unspecified until written.  The return is true if the block was reallocated,
// in which case virtual offsets have moved
func (b *Buffer) AddAtStart(n uint32) bool {
	b.checkLive()
	reallocated := false
	isDirty := b.data.count > 1 && b.start > b.data.dirtyStart
	if b.start >= n && !isDirty {
		b.start -= n
		b.data.dirtyStart = b.start
	} else {
		newSize := b.internalSize() + n
		newData := b.alloc.create(newSize)
		copy(newData.bytes[n:], b.data.bytes[b.start:b.start+b.internalSize()])
		b.alloc.noteStart(b.maxZeroAreaStart)
		b.data.count -= 1
		if b.data.count == 0 {
			b.alloc.recycle(b.data)
		}
		b.data = newData

		// shift the offsets so that the old start lands at index n
		b.zeroAreaStart = b.zeroAreaStart + n - b.start
		b.zeroAreaEnd = b.zeroAreaEnd + n - b.start
		b.end = b.end + n - b.start
		b.start = 0

		b.data.dirtyStart = b.start
		b.data.dirtyEnd = b.end
		reallocated = true
	}
	b.maxZeroAreaStart = max(b.maxZeroAreaStart, b.zeroAreaStart)
	return reallocated
}

// AddAtEnd grows the buffer by n bytes at the end.  The return is true if the
// block was reallocated, in which case virtual offsets have moved
func (b *Buffer) AddAtEnd(n uint32) bool {
	b.checkLive()
	reallocated := false
	isDirty := b.data.count > 1 && b.end < b.data.dirtyEnd
	if b.internalEnd()+n <= b.data.size && !isDirty {
		b.end += n
		b.data.dirtyEnd = b.end
	} else {
		newSize := b.internalSize() + n
		newData := b.alloc.create(newSize)
		copy(newData.bytes, b.data.bytes[b.start:b.start+b.internalSize()])
		b.alloc.noteStart(b.maxZeroAreaStart)
		b.data.count -= 1
		if b.data.count == 0 {
			b.alloc.recycle(b.data)
		}
		b.data = newData

		b.zeroAreaStart -= b.start
		b.zeroAreaEnd -= b.start
		b.end -= b.start
		b.start = 0
		b.end += n

		b.data.dirtyStart = b.start
		b.data.dirtyEnd = b.end
		reallocated = true
	}
	b.maxZeroAreaStart = max(b.maxZeroAreaStart, b.zeroAreaStart)
	return reallocated
}

// AddBufferAtEnd appends the contents of o.  When b ends in its zero area and o
// begins in its own, the two zero areas are merged without materialising them
func (b *Buffer) AddBufferAtEnd(o *Buffer) {
	b.checkLive()
	o.checkLive()
	if o == b {
		o = b.Copy()
		defer o.Release()
	}
	if b.data.count == 1 &&
		b.end == b.zeroAreaEnd &&
		b.end == b.data.dirtyEnd &&
		o.start == o.zeroAreaStart &&
		o.zeroSize() > 0 {
		b.zeroAreaEnd += o.zeroSize()
		b.end = b.zeroAreaEnd
		b.data.dirtyEnd = b.zeroAreaEnd
		endData := o.end - o.zeroAreaEnd
		b.AddAtEnd(endData)
		dst := b.End()
		dst.Prev(endData)
		src := o.End()
		src.Prev(endData)
		dst.WriteFrom(src, o.End())
		return
	}

	dst := b.CreateFullCopy()
	src := o.CreateFullCopy()
	dst.AddAtEnd(src.Size())
	destStart := dst.End()
	destStart.Prev(src.Size())
	destStart.WriteFrom(src.Begin(), src.End())
	src.Release()
	b.moveFrom(dst)
}

// RemoveAtStart drops the first n bytes, or all of them if there are fewer
func (b *Buffer) RemoveAtStart(n uint32) {
	b.checkLive()
	n = min(n, b.Size())
	newStart := b.start + n
	zs := b.zeroSize()
	switch {
	case newStart <= b.zeroAreaStart:
		// only removing real bytes before the zero area
		b.start = newStart
	case newStart <= b.zeroAreaEnd:
		// removing part of the zero area
		delta := newStart - b.zeroAreaStart
		b.start = b.zeroAreaStart
		b.zeroAreaEnd -= delta
		b.end -= delta
	case newStart <= b.end:
		// removing the whole zero area and some bytes after it
		b.start = newStart - zs
		b.end -= zs
		b.zeroAreaStart = b.start
		b.zeroAreaEnd = b.start
	default:
		// removing everything
		b.end -= zs
		b.zeroAreaStart = b.end
		b.zeroAreaEnd = b.end
		b.start = b.end
	}
	b.maxZeroAreaStart = max(b.maxZeroAreaStart, b.zeroAreaStart)
}

// RemoveAtEnd drops the last n bytes, or all of them if there are fewer
func (b *Buffer) RemoveAtEnd(n uint32) {
	b.checkLive()
	n = min(n, b.Size())
	newEnd := b.end - n
	switch {
	case newEnd > b.zeroAreaEnd:
		b.end = newEnd
	case newEnd > b.zeroAreaStart:
		b.end = newEnd
		b.zeroAreaEnd = newEnd
	case newEnd > b.start:
		b.end = newEnd
		b.zeroAreaEnd = newEnd
		b.zeroAreaStart = newEnd
	default:
		b.end = b.start
		b.zeroAreaEnd = b.start
		b.zeroAreaStart = b.start
	}
	b.maxZeroAreaStart = max(b.maxZeroAreaStart, b.zeroAreaStart)
}

// CreateFragment returns a view of length bytes starting at offset start
func (b *Buffer) CreateFragment(start, length uint32) *Buffer {
	if start+length > b.Size() {
		panic(fmt.Errorf("fragment [%d, %d) beyond buffer of size %d", start, start+length, b.Size()))
	}
	frag := b.Copy()
	frag.RemoveAtStart(start)
	frag.RemoveAtEnd(b.Size() - (start + length))
	return frag
}

// CreateFullCopy returns a buffer with the same contents and no zero area
func (b *Buffer) CreateFullCopy() *Buffer {
	b.checkLive()
	if b.zeroSize() == 0 {
		return b.Copy()
	}
	tmp := NewBufferWith(b.alloc, 0)
	tmp.AddAtStart(b.zeroSize())
	it := tmp.Begin()
	it.WriteU8Repeat(0, b.zeroSize())

	dataStart := b.zeroAreaStart - b.start
	tmp.AddAtStart(dataStart)
	it = tmp.Begin()
	it.Write(b.data.bytes[b.start : b.start+dataStart])

	dataEnd := b.end - b.zeroAreaEnd
	tmp.AddAtEnd(dataEnd)
	it = tmp.End()
	it.Prev(dataEnd)
	it.Write(b.data.bytes[b.zeroAreaStart : b.zeroAreaStart+dataEnd])
	return tmp
}

// PeekData materialises the zero area in place and returns the contents.
// The slice aliases the buffer and is valid until the buffer next changes
func (b *Buffer) PeekData() []byte {
	b.checkLive()
	if b.zeroSize() != 0 {
		b.moveFrom(b.CreateFullCopy())
	}
	return b.data.bytes[b.start:b.end]
}

// CopyDataTo copies the first len(dst) bytes (or all, if fewer) into dst and returns the count copied
func (b *Buffer) CopyDataTo(dst []byte) int {
	b.checkLive()
	size := uint32(len(dst))
	original := size
	tmp := min(b.zeroAreaStart-b.start, size)
	copy(dst, b.data.bytes[b.start:b.start+tmp])
	dst = dst[tmp:]
	size -= tmp
	if size > 0 {
		tmp = min(b.zeroSize(), size)
		clear(dst[:tmp])
		dst = dst[tmp:]
		size -= tmp
		if size > 0 {
			tmp = min(b.end-b.zeroAreaEnd, size)
			copy(dst, b.data.bytes[b.zeroAreaStart:b.zeroAreaStart+tmp])
			size -= tmp
		}
	}
	return int(original - size)
}

// CopyData writes the first size bytes (or all, if fewer) to w
func (b *Buffer) CopyData(w io.Writer, size uint32) error {
	size = min(size, b.Size())
	out := make([]byte, size)
	b.CopyDataTo(out)
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("copying buffer contents: %w", err)
	}
	return nil
}

// Begin returns an iterator on the first byte
func (b *Buffer) Begin() Iterator {
	b.checkLive()
	return Iterator{block: b.data, zeroStart: b.zeroAreaStart, zeroEnd: b.zeroAreaEnd,
		dataStart: b.start, dataEnd: b.end, current: b.start}
}

// End returns an iterator one past the last byte
func (b *Buffer) End() Iterator {
	it := b.Begin()
	it.current = b.end
	return it
}

func pad4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// SerializedSize is the number of bytes Serialize writes
func (b *Buffer) SerializedSize() uint32 {
	return 4 + 4 + pad4(b.zeroAreaStart-b.start) + 4 + pad4(b.end-b.zeroAreaEnd)
}

// Serialize writes the buffer, keeping the zero area virtual: its length, then
// the bytes before it and the bytes after it, each preceded by their length and
// padded to a multiple of four.  Lengths are little-endian.  The return is
// false if dst is too small
func (b *Buffer) Serialize(dst []byte) bool {
	b.checkLive()
	if uint32(len(dst)) < b.SerializedSize() {
		return false
	}
	w := NewTagBuffer(dst)
	w.WriteU32(b.zeroSize())

	dataStartLength := b.zeroAreaStart - b.start
	w.WriteU32(dataStartLength)
	w.Write(b.data.bytes[b.start : b.start+dataStartLength])
	w.WriteZeros(pad4(dataStartLength) - dataStartLength)

	dataEndLength := b.end - b.zeroAreaEnd
	w.WriteU32(dataEndLength)
	w.Write(b.data.bytes[b.zeroAreaStart : b.zeroAreaStart+dataEndLength])
	w.WriteZeros(pad4(dataEndLength) - dataEndLength)
	return true
}

// Deserialize replaces the contents with what Serialize wrote into src.  The
// return is false if src is not exactly one complete serialized buffer
func (b *Buffer) Deserialize(src []byte) bool {
	if b.alloc == nil {
		b.alloc = defaultAllocator
	}
	r := NewTagBuffer(src)
	if r.Remaining() < 8 {
		return false
	}
	zeroLength := r.ReadU32()
	dataStartLength := r.ReadU32()
	if r.Remaining() < pad4(dataStartLength)+4 {
		return false
	}
	startBytes := r.Read(dataStartLength)
	r.Skip(pad4(dataStartLength) - dataStartLength)
	dataEndLength := r.ReadU32()
	if r.Remaining() != pad4(dataEndLength) {
		return false
	}
	endBytes := r.Read(dataEndLength)

	b.Release()
	b.initialize(zeroLength)
	b.AddAtStart(dataStartLength)
	it := b.Begin()
	it.Write(startBytes)
	b.AddAtEnd(dataEndLength)
	it = b.End()
	it.Prev(dataEndLength)
	it.Write(endBytes)
	return true
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{size=%d, zero=[%d,%d), range=[%d,%d)}",
		b.Size(), b.zeroAreaStart, b.zeroAreaEnd, b.start, b.end)
}
