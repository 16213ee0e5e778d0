package packet

// packet.go holds Packet, the unit of data handed between protocol layers.
// A packet combines a Buffer with the tags attached to it, the metadata
// describing its chunks, and an optional source route.  Copies are cheap:
// every part is shared until one of the copies changes it.

import (
	"fmt"
	"io"
	"strings"
)

// uid generation state.  A uid is the system id in the high 32 bits and a
// per-process count in the low 32
var (
	nxtPacketUID uint32
	systemID     uint32
)

// SetSystemID sets the high half of the uids of packets created from now on,
// distinguishing packets built by different processes of a distributed run
func SetSystemID(id uint32) {
	systemID = id
}

func allocatePacketUID() uint64 {
	uid := uint64(systemID)<<32 | uint64(nxtPacketUID)
	nxtPacketUID++
	return uid
}

// Packet is a copy-on-write sequence of bytes with headers, trailers and tags
type Packet struct {
	uid        uint64
	buffer     *Buffer
	byteTags   ByteTagList
	packetTags PacketTagList
	metadata   *PacketMetadata
	nix        *NixVector
}

// NewPacket returns an empty packet with a fresh uid
func NewPacket() *Packet {
	p := new(Packet)
	p.uid = allocatePacketUID()
	p.buffer = NewBuffer()
	p.byteTags = NewByteTagList()
	p.metadata = NewPacketMetadata(p.uid, 0)
	return p
}

// NewPacketSize returns a packet holding size zero bytes of payload.  The
// payload occupies no memory until it is read as a whole
func NewPacketSize(size uint32) *Packet {
	p := new(Packet)
	p.uid = allocatePacketUID()
	p.buffer = NewBufferSize(size)
	p.byteTags = NewByteTagList()
	p.metadata = NewPacketMetadata(p.uid, size)
	return p
}

// NewPacketFromBytes returns a packet whose payload is a copy of b
func NewPacketFromBytes(b []byte) *Packet {
	p := new(Packet)
	p.uid = allocatePacketUID()
	p.buffer = NewBuffer()
	p.byteTags = NewByteTagList()
	p.metadata = NewPacketMetadata(p.uid, uint32(len(b)))
	p.buffer.AddAtStart(uint32(len(b)))
	it := p.buffer.Begin()
	it.Write(b)
	return p
}

// NewPacketFromSerialized rebuilds a packet from what Serialize wrote.  The
// return is false if src is not a complete serialized packet
func NewPacketFromSerialized(src []byte) (*Packet, bool) {
	p := new(Packet)
	p.buffer = NewBuffer()
	p.byteTags = NewByteTagList()
	p.metadata = NewPacketMetadata(0, 0)
	if !p.deserialize(src) {
		p.Release()
		return nil, false
	}
	p.uid = p.metadata.UID()
	return p, true
}

// Copy returns a packet with the same uid and contents, sharing storage with p
func (p *Packet) Copy() *Packet {
	cp := new(Packet)
	cp.uid = p.uid
	cp.buffer = p.buffer.Copy()
	cp.byteTags = p.byteTags.Copy()
	cp.packetTags = p.packetTags.Copy()
	cp.metadata = p.metadata.Copy()
	if p.nix != nil {
		cp.nix = p.nix.Copy()
	}
	return cp
}

// Release gives up p's share of its storage.  The packet may not be used afterwards
func (p *Packet) Release() {
	p.buffer.Release()
	p.byteTags.Release()
	p.packetTags.Release()
	p.metadata.Release()
	p.nix = nil
}

// UID returns the packet's uid, shared by its copies and fragments
func (p *Packet) UID() uint64 {
	return p.uid
}

// Size returns the number of bytes in the packet
func (p *Packet) Size() uint32 {
	return p.buffer.Size()
}

// AddHeader serializes h in front of the current contents.  Byte tags keep
// covering the bytes they covered; the new header bytes are untagged
func (p *Packet) AddHeader(h Header) {
	size := h.SerializedSize()
	p.buffer.AddAtStart(size)
	p.byteTags.Adjust(int32(size))
	p.byteTags.AddAtStart(int32(size))
	h.Serialize(p.buffer.Begin())
	p.metadata.AddHeader(h.TypeID(), size)
}

// RemoveHeader deserializes h from the front and drops its bytes, returning their number
func (p *Packet) RemoveHeader(h Header) uint32 {
	n := h.Deserialize(p.buffer.Begin())
	p.buffer.RemoveAtStart(n)
	p.byteTags.Adjust(-int32(n))
	p.metadata.RemoveHeader(h.TypeID(), n)
	return n
}

// PeekHeader deserializes h from the front without removing it
func (p *Packet) PeekHeader(h Header) uint32 {
	return h.Deserialize(p.buffer.Begin())
}

// AddTrailer serializes t after the current contents
func (p *Packet) AddTrailer(t Trailer) {
	size := t.SerializedSize()
	p.byteTags.AddAtEnd(int32(p.Size()))
	p.buffer.AddAtEnd(size)
	t.Serialize(p.buffer.End())
	p.metadata.AddTrailer(t.TypeID(), size)
}

// RemoveTrailer deserializes t from the back and drops its bytes, returning their number
func (p *Packet) RemoveTrailer(t Trailer) uint32 {
	n := t.Deserialize(p.buffer.End())
	p.buffer.RemoveAtEnd(n)
	p.metadata.RemoveTrailer(t.TypeID(), n)
	return n
}

// PeekTrailer deserializes t from the back without removing it
func (p *Packet) PeekTrailer(t Trailer) uint32 {
	return t.Deserialize(p.buffer.End())
}

// CreateFragment returns a packet holding length bytes from offset start.  The
// fragment keeps p's uid, packet tags, a copy of its route, and the byte tags covering its bytes
func (p *Packet) CreateFragment(start, length uint32) *Packet {
	if start+length > p.Size() {
		panic(fmt.Errorf("fragment [%d, %d) beyond packet of size %d", start, start+length, p.Size()))
	}
	frag := new(Packet)
	frag.uid = p.uid
	frag.buffer = p.buffer.CreateFragment(start, length)
	frag.byteTags = p.byteTags.Copy()
	frag.byteTags.Adjust(-int32(start))
	frag.packetTags = p.packetTags.Copy()
	frag.metadata = p.metadata.CreateFragment(start, p.Size()-(start+length))
	if p.nix != nil {
		frag.nix = p.nix.Copy()
	}
	return frag
}

// AddAtEnd appends the contents of o.  o's byte tags move with its bytes
func (p *Packet) AddAtEnd(o *Packet) {
	size := int32(p.Size())
	p.byteTags.AddAtEnd(size)
	appended := o.byteTags.Copy()
	appended.AddAtStart(0)
	appended.Adjust(size)
	p.byteTags.AddList(&appended)
	appended.Release()
	p.buffer.AddBufferAtEnd(o.buffer)
	p.metadata.AddAtEnd(o.metadata)
}

// AddPaddingAtEnd appends size zero bytes
func (p *Packet) AddPaddingAtEnd(size uint32) {
	p.byteTags.AddAtEnd(int32(p.Size()))
	p.buffer.AddAtEnd(size)
	end := p.buffer.End()
	end.Prev(size)
	end.WriteU8Repeat(0, size)
	p.metadata.AddPaddingAtEnd(size)
}

// RemoveAtEnd drops the last size bytes
func (p *Packet) RemoveAtEnd(size uint32) {
	p.buffer.RemoveAtEnd(size)
	p.metadata.RemoveAtEnd(size)
}

// RemoveAtStart drops the first size bytes
func (p *Packet) RemoveAtStart(size uint32) {
	p.buffer.RemoveAtStart(size)
	p.byteTags.Adjust(-int32(size))
	p.metadata.RemoveAtStart(size)
}

// PeekData returns the packet's bytes.  The slice aliases the packet and is
// valid until the packet next changes
func (p *Packet) PeekData() []byte {
	return p.buffer.PeekData()
}

// CopyDataTo copies the first len(dst) bytes (or all, if fewer) into dst and returns the count copied
func (p *Packet) CopyDataTo(dst []byte) int {
	return p.buffer.CopyDataTo(dst)
}

// CopyData writes the first size bytes (or all, if fewer) to w
func (p *Packet) CopyData(w io.Writer, size uint32) error {
	return p.buffer.CopyData(w, size)
}

// AddByteTag tags every byte currently in the packet
func (p *Packet) AddByteTag(tag Tag) {
	p.AddByteTagRange(tag, 0, p.Size())
}

// AddByteTagRange tags the bytes [start, end)
func (p *Packet) AddByteTagRange(tag Tag, start, end uint32) {
	if end < start {
		panic(fmt.Errorf("byte tag range [%d, %d) ends before it starts", start, end))
	}
	tb := p.byteTags.Add(tag.TypeID(), tag.SerializedSize(), int32(start), int32(end))
	tag.Serialize(tb)
}

// ByteTags returns an iterator over the byte tags, with ranges relative to
// the first byte and clipped to the packet
func (p *Packet) ByteTags() *ByteTagListIterator {
	return p.byteTags.Begin(0, int32(p.Size()))
}

// FindFirstMatchingByteTag fills tag from the first byte tag of its type, reporting whether there was one
func (p *Packet) FindFirstMatchingByteTag(tag Tag) bool {
	tid := tag.TypeID()
	it := p.ByteTags()
	for it.HasNext() {
		item := it.Next()
		if item.TID == tid {
			item.Tag(tag)
			return true
		}
	}
	return false
}

// RemoveAllByteTags drops every byte tag
func (p *Packet) RemoveAllByteTags() {
	p.byteTags.RemoveAll()
}

// AddPacketTag attaches tag to the packet; a tag of its type must not already be attached
func (p *Packet) AddPacketTag(tag Tag) {
	p.packetTags.Add(tag)
}

// RemovePacketTag detaches the tag of tag's type, filling tag with it, and reports whether there was one
func (p *Packet) RemovePacketTag(tag Tag) bool {
	return p.packetTags.Remove(tag)
}

// ReplacePacketTag attaches tag, replacing any tag of its type
func (p *Packet) ReplacePacketTag(tag Tag) {
	p.packetTags.Replace(tag)
}

// PeekPacketTag fills tag from the attached tag of its type, reporting whether there was one
func (p *Packet) PeekPacketTag(tag Tag) bool {
	return p.packetTags.Peek(tag)
}

// RemoveAllPacketTags detaches every packet tag
func (p *Packet) RemoveAllPacketTags() {
	p.packetTags.RemoveAll()
}

// PacketTags calls fn on each packet tag until fn returns false
func (p *Packet) PacketTags(fn func(item PacketTagItem) bool) {
	p.packetTags.Iterate(fn)
}

// SetNixVector attaches a source route
func (p *Packet) SetNixVector(nv *NixVector) {
	p.nix = nv
}

// NixVector returns the attached source route, or nil
func (p *Packet) NixVector() *NixVector {
	return p.nix
}

// Metadata returns an iterator over the chunks recorded for the packet
func (p *Packet) Metadata() *ItemIterator {
	return p.metadata.BeginItem(p.buffer)
}

// Print writes a description of each chunk of the packet.  Headers and
// trailers whose type has a factory are decoded and shown in full
func (p *Packet) Print(w io.Writer) {
	it := p.Metadata()
	first := true
	for it.HasNext() {
		item := it.Next()
		if !first {
			fmt.Fprint(w, " ")
		}
		first = false
		if item.IsFragment {
			name := "Payload"
			if item.Kind != KindPayload {
				name = item.TID.Name()
			}
			fmt.Fprintf(w, "%s Fragment [%d:%d]", name, item.TrimmedFromStart, item.TrimmedFromStart+item.CurrentSize)
			continue
		}
		switch item.Kind {
		case KindPayload:
			fmt.Fprintf(w, "Payload (size=%d)", item.CurrentSize)
		case KindHeader:
			fmt.Fprintf(w, "%s (", item.TID.Name())
			if h, ok := item.TID.newInstance().(Header); ok {
				h.Deserialize(item.Current)
				fmt.Fprint(w, h.String())
			}
			fmt.Fprint(w, ")")
		case KindTrailer:
			fmt.Fprintf(w, "%s (", item.TID.Name())
			if t, ok := item.TID.newInstance().(Trailer); ok {
				t.Deserialize(item.Current)
				fmt.Fprint(w, t.String())
			}
			fmt.Fprint(w, ")")
		}
	}
}

// PrintByteTags writes each byte tag and its range
func (p *Packet) PrintByteTags(w io.Writer) {
	it := p.ByteTags()
	first := true
	for it.HasNext() {
		item := it.Next()
		if !first {
			fmt.Fprint(w, " ")
		}
		first = false
		fmt.Fprintf(w, "%s [%d-%d]", item.TID.Name(), item.Start, item.End)
		if tag, ok := item.TID.newInstance().(Tag); ok {
			item.Tag(tag)
			fmt.Fprintf(w, " %s", tag.String())
		}
	}
}

// PrintPacketTags writes each packet tag
func (p *Packet) PrintPacketTags(w io.Writer) {
	first := true
	p.packetTags.Iterate(func(item PacketTagItem) bool {
		if !first {
			fmt.Fprint(w, " ")
		}
		first = false
		fmt.Fprint(w, item.TypeID().Name())
		if tag, ok := item.TypeID().newInstance().(Tag); ok {
			item.Tag(tag)
			fmt.Fprintf(w, " %s", tag.String())
		}
		return true
	})
}

func (p *Packet) String() string {
	var sb strings.Builder
	p.Print(&sb)
	return sb.String()
}

// SerializedSize is the number of bytes Serialize writes
func (p *Packet) SerializedSize() uint32 {
	size := uint32(4)
	if p.nix != nil {
		size += pad4(p.nix.SerializedSize())
	}
	size += 4 + pad4(p.metadata.SerializedSize())
	size += 4 + pad4(p.buffer.SerializedSize())
	return size
}

// Serialize writes the route, the metadata and the buffer, in that order.
// Each block starts with its own length, the four length bytes included, and
// is padded to a multiple of four.  A packet without a route has a route
// block of just its length.  Byte and packet tags are not serialized.  The
// return is false if dst is too small
func (p *Packet) Serialize(dst []byte) bool {
	if uint32(len(dst)) < p.SerializedSize() {
		return false
	}
	w := NewTagBuffer(dst)
	if p.nix != nil {
		nixSize := p.nix.SerializedSize()
		w.WriteU32(nixSize + 4)
		if !p.nix.Serialize(dst[w.Offset() : w.Offset()+nixSize]) {
			return false
		}
		w.Skip(nixSize)
		w.WriteZeros(pad4(nixSize) - nixSize)
	} else {
		w.WriteU32(4)
	}

	metaSize := p.metadata.SerializedSize()
	w.WriteU32(metaSize + 4)
	if !p.metadata.Serialize(dst[w.Offset() : w.Offset()+metaSize]) {
		return false
	}
	w.Skip(metaSize)
	w.WriteZeros(pad4(metaSize) - metaSize)

	bufSize := p.buffer.SerializedSize()
	w.WriteU32(bufSize + 4)
	if !p.buffer.Serialize(dst[w.Offset() : w.Offset()+bufSize]) {
		return false
	}
	w.Skip(bufSize)
	w.WriteZeros(pad4(bufSize) - bufSize)
	return true
}

// nextBlock returns the contents of the length-prefixed block at the cursor
// and moves past it and its padding
func nextBlock(r *TagBuffer) ([]byte, bool) {
	if r.Remaining() < 4 {
		return nil, false
	}
	size := r.ReadU32()
	if size < 4 || pad4(size-4) > r.Remaining() {
		return nil, false
	}
	block := r.Read(size - 4)
	r.Skip(pad4(size-4) - (size - 4))
	return block, true
}

func (p *Packet) deserialize(src []byte) bool {
	r := NewTagBuffer(src)
	nixBlock, ok := nextBlock(r)
	if !ok {
		return false
	}
	if len(nixBlock) > 0 {
		nix := NewNixVector()
		if !nix.Deserialize(nixBlock) {
			return false
		}
		p.nix = nix
	}
	metaBlock, ok := nextBlock(r)
	if !ok || !p.metadata.Deserialize(metaBlock) {
		return false
	}
	bufBlock, ok := nextBlock(r)
	if !ok || !p.buffer.Deserialize(bufBlock) {
		return false
	}
	return r.Remaining() == 0
}
