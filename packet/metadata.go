package packet

// metadata.go holds PacketMetadata, the record of which header, trailer and
// payload chunks make up a packet's bytes.  Records are kept as a doubly linked
// list encoded into a shared byte block: each record holds the offsets of its
// neighbors, the chunk's type and size as ULEB128 values, and a chunk uid.
// Records describing a fragment of a chunk ("big" records, flagged by the low
// bit of the type field) also hold the fragment bounds and the uid of the
// packet the chunk was first added to.
//
// Copies share the block.  A copy may append in place as long as the bytes
// past its last record have not been claimed by somebody else (the block's
// dirty end); otherwise it takes a private copy of the block first.

import (
	"fmt"
	"strings"

	"github.com/multiformats/go-varint"
)

// noItem marks the absence of a record where a record offset is expected
const noItem uint16 = 0xffff

// minMetadataSize is the smallest block ever allocated
const minMetadataSize = 10

type metadataData struct {
	count    uint32
	dirtyEnd uint16
	bytes    []byte
}

type smallItem struct {
	next     uint16
	prev     uint16
	typeUID  uint32
	size     uint32
	chunkUID uint16
}

type extraItem struct {
	fragmentStart uint32
	fragmentEnd   uint32
	packetUID     uint64
}

// process-wide metadata state
var (
	metadataEnabled  bool
	metadataChecking bool
	metadataSkipped  bool
	metadataMaxSize  uint32
	metadataChunkUID uint16
	metadataFreeList []*metadataData
)

// EnableMetadata turns on recording of metadata for packets created from now
// on.  It panics if a packet has already been manipulated without metadata
func EnableMetadata() {
	if metadataSkipped {
		panic("attempting to enable packet metadata too late in the simulation: " +
			"packets were already built without it; enable metadata before sending any packets")
	}
	metadataEnabled = true
	logger.Debug("packet metadata enabled")
}

// EnableMetadataChecking turns on metadata and makes a mismatched header or
// trailer removal panic instead of being ignored
func EnableMetadataChecking() {
	EnableMetadata()
	metadataChecking = true
}

// MetadataEnabled reports whether metadata is being recorded
func MetadataEnabled() bool {
	return metadataEnabled
}

// ResetMetadata returns the process-wide metadata state to what it was at
// start up, to be called between independent runs
func ResetMetadata() {
	metadataEnabled = false
	metadataChecking = false
	metadataSkipped = false
	metadataMaxSize = 0
	metadataChunkUID = 0
	metadataFreeList = nil
}

func createMetadataData(size uint32) *metadataData {
	metadataMaxSize = max(metadataMaxSize, size)
	for len(metadataFreeList) > 0 {
		last := len(metadataFreeList) - 1
		data := metadataFreeList[last]
		metadataFreeList[last] = nil
		metadataFreeList = metadataFreeList[:last]
		if uint32(len(data.bytes)) >= size {
			data.count = 1
			return data
		}
	}
	return allocateMetadataData(metadataMaxSize)
}

func allocateMetadataData(n uint32) *metadataData {
	n = max(n, minMetadataSize)
	if n > uint32(noItem) {
		panic(fmt.Errorf("packet metadata of %d bytes exceeds the encodable maximum", n))
	}
	return &metadataData{count: 1, bytes: make([]byte, n)}
}

func recycleMetadataData(data *metadataData) {
	if !metadataEnabled {
		return
	}
	if len(metadataFreeList) > maxFreeListSize || uint32(len(data.bytes)) < metadataMaxSize {
		return
	}
	metadataFreeList = append(metadataFreeList, data)
}

// PacketMetadata is the copy-on-write record of a packet's chunks
type PacketMetadata struct {
	data      *metadataData
	head      uint16
	tail      uint16
	used      uint16
	packetUID uint64
}

// NewPacketMetadata returns the metadata of a packet with the given uid,
// holding a payload chunk of size bytes if size is not zero
func NewPacketMetadata(uid uint64, size uint32) *PacketMetadata {
	m := &PacketMetadata{data: createMetadataData(minMetadataSize), head: noItem, tail: noItem, packetUID: uid}
	put16(m.data.bytes, noItem)
	put16(m.data.bytes[2:], noItem)
	if size > 0 {
		m.doAddHeader(0, size)
	}
	return m
}

// Copy returns metadata sharing m's block
func (m *PacketMetadata) Copy() *PacketMetadata {
	cp := *m
	cp.data.count += 1
	return &cp
}

// Release gives up m's share of its block
func (m *PacketMetadata) Release() {
	if m.data == nil {
		return
	}
	m.data.count -= 1
	if m.data.count == 0 {
		recycleMetadataData(m.data)
	}
	m.data = nil
}

// moveFrom makes m what o was; o must not be used afterwards
func (m *PacketMetadata) moveFrom(o *PacketMetadata) {
	if m == o {
		return
	}
	m.Release()
	*m = *o
	o.data = nil
}

// assign makes m another reference to o's block
func (m *PacketMetadata) assign(o *PacketMetadata) {
	m.moveFrom(o.Copy())
}

// UID returns the uid of the packet the metadata belongs to
func (m *PacketMetadata) UID() uint64 {
	return m.packetUID
}

func put16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func get16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func put64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func get64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func ulebSize(v uint32) int {
	return varint.UvarintSize(uint64(v))
}

func readUleb(b []byte) (uint32, int) {
	v, n, err := varint.FromUvarint(b)
	if err != nil {
		panic(fmt.Errorf("corrupt packet metadata record: %w", err))
	}
	return uint32(v), n
}

// appendable reports whether bytes past used may be written without copying the block
func (m *PacketMetadata) appendable() bool {
	return m.data.count == 1 || m.used == m.data.dirtyEnd
}

// reserveCopy moves the records into a private block with room for size more bytes
func (m *PacketMetadata) reserveCopy(size uint32) {
	newData := createMetadataData(uint32(m.used) + size)
	copy(newData.bytes, m.data.bytes[:m.used])
	newData.dirtyEnd = m.used
	m.data.count -= 1
	if m.data.count == 0 {
		recycleMetadataData(m.data)
	}
	m.data = newData
	if m.head != noItem {
		// the old block may have linked our ends to records of other copies
		put16(m.data.bytes[m.tail:], noItem)
		put16(m.data.bytes[m.head+2:], noItem)
	}
}

// addSmall encodes item past the used bytes and returns its size
func (m *PacketMetadata) addSmall(item *smallItem) uint16 {
	n := ulebSize(item.typeUID) + ulebSize(item.size) + 2 + 2 + 2
	for {
		if int(m.used)+n <= len(m.data.bytes) && m.appendable() {
			buf := m.data.bytes[m.used:]
			put16(buf, item.next)
			put16(buf[2:], item.prev)
			off := 4
			off += varint.PutUvarint(buf[off:], uint64(item.typeUID))
			off += varint.PutUvarint(buf[off:], uint64(item.size))
			put16(buf[off:], item.chunkUID)
			return uint16(n)
		}
		m.reserveCopy(uint32(n))
	}
}

func bigItemSize(typeUID uint32, item *smallItem, extra *extraItem) int {
	return 2 + 2 + ulebSize(typeUID) + ulebSize(item.size) + 2 +
		ulebSize(extra.fragmentStart) + ulebSize(extra.fragmentEnd) + 8
}

func encodeBig(buf []byte, next, prev uint16, typeUID uint32, item *smallItem, extra *extraItem) int {
	put16(buf, next)
	put16(buf[2:], prev)
	off := 4
	off += varint.PutUvarint(buf[off:], uint64(typeUID))
	off += varint.PutUvarint(buf[off:], uint64(item.size))
	put16(buf[off:], item.chunkUID)
	off += 2
	off += varint.PutUvarint(buf[off:], uint64(extra.fragmentStart))
	off += varint.PutUvarint(buf[off:], uint64(extra.fragmentEnd))
	put64(buf[off:], extra.packetUID)
	return off + 8
}

// addBig encodes item and extra as a big record past the used bytes and returns its size
func (m *PacketMetadata) addBig(next, prev uint16, item *smallItem, extra *extraItem) uint16 {
	typeUID := item.typeUID | 1
	n := bigItemSize(typeUID, item, extra)
	for {
		if len(m.data.bytes)-int(m.used) >= n && m.appendable() {
			return uint16(encodeBig(m.data.bytes[m.used:], next, prev, typeUID, item, extra))
		}
		m.reserveCopy(uint32(n))
	}
}

// updateHead links the record just written at used in front of the list
func (m *PacketMetadata) updateHead(written uint16) {
	if m.head == noItem {
		m.head = m.used
		m.tail = m.used
	} else {
		put16(m.data.bytes[m.head+2:], m.used)
		m.head = m.used
	}
	m.used += written
	m.data.dirtyEnd = m.used
}

// updateTail links the record just written at used at the end of the list
func (m *PacketMetadata) updateTail(written uint16) {
	if m.head == noItem {
		m.head = m.used
		m.tail = m.used
	} else {
		put16(m.data.bytes[m.tail:], m.used)
		m.tail = m.used
	}
	m.used += written
	m.data.dirtyEnd = m.used
}

// replaceTail rewrites the last record, in place if the block is ours and
// available bytes suffice, otherwise by rebuilding the whole list
func (m *PacketMetadata) replaceTail(item *smallItem, extra *extraItem, available int) {
	typeUID := item.typeUID | 1
	n := bigItemSize(typeUID, item, extra)
	if available >= n && m.data.count == 1 {
		written := encodeBig(m.data.bytes[m.tail:], item.next, item.prev, typeUID, item, extra)
		// records added in front of the tail may lie past it
		m.used = max(m.used, m.tail+uint16(written))
		m.data.dirtyEnd = m.used
		return
	}
	h := newEmptyMetadata(m.packetUID)
	current := m.head
	for current != noItem && current != m.tail {
		var tmpItem smallItem
		var tmpExtra extraItem
		m.readItems(current, &tmpItem, &tmpExtra)
		h.updateTail(h.addBig(noItem, h.tail, &tmpItem, &tmpExtra))
		current = tmpItem.next
	}
	h.updateTail(h.addBig(noItem, h.tail, item, extra))
	m.moveFrom(h)
}

func newEmptyMetadata(uid uint64) *PacketMetadata {
	return NewPacketMetadata(uid, 0)
}

// readItems decodes the record at current and returns its encoded size
func (m *PacketMetadata) readItems(current uint16, item *smallItem, extra *extraItem) uint16 {
	buf := m.data.bytes[current:]
	item.next = get16(buf)
	item.prev = get16(buf[2:])
	off := 4
	var n int
	item.typeUID, n = readUleb(buf[off:])
	off += n
	item.size, n = readUleb(buf[off:])
	off += n
	item.chunkUID = get16(buf[off:])
	off += 2
	if item.typeUID&1 == 1 {
		extra.fragmentStart, n = readUleb(buf[off:])
		off += n
		extra.fragmentEnd, n = readUleb(buf[off:])
		off += n
		extra.packetUID = get64(buf[off:])
		off += 8
	} else {
		extra.fragmentStart = 0
		extra.fragmentEnd = item.size
		extra.packetUID = m.packetUID
	}
	return uint16(off)
}

func (m *PacketMetadata) doAddHeader(uid uint32, size uint32) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	item := smallItem{next: m.head, prev: noItem, typeUID: uid, size: size, chunkUID: metadataChunkUID}
	metadataChunkUID++
	m.updateHead(m.addSmall(&item))
}

// AddHeader records a header of type tid and size bytes at the front
func (m *PacketMetadata) AddHeader(tid TypeID, size uint32) {
	m.doAddHeader(uint32(tid)<<1, size)
}

// RemoveHeader drops the record of the header at the front, which must be
// a complete header of type tid and size bytes
func (m *PacketMetadata) RemoveHeader(tid TypeID, size uint32) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	if m.head == noItem {
		if metadataChecking {
			panic(fmt.Errorf("removing unexpected header %s: no header recorded", tid))
		}
		return
	}
	uid := uint32(tid) << 1
	var item smallItem
	var extra extraItem
	read := m.readItems(m.head, &item, &extra)
	if item.typeUID&^1 != uid || item.size != size {
		if metadataChecking {
			panic(fmt.Errorf("removing unexpected header %s of %d bytes", tid, size))
		}
		return
	} else if item.typeUID != uid && (extra.fragmentStart != 0 || extra.fragmentEnd != size) {
		if metadataChecking {
			panic(fmt.Errorf("removing incomplete header %s", tid))
		}
		return
	}
	if m.head+read == m.used {
		m.used = m.head
	}
	if m.head == m.tail {
		m.head = noItem
		m.tail = noItem
	} else {
		m.head = item.next
	}
}

// AddTrailer records a trailer of type tid and size bytes at the end
func (m *PacketMetadata) AddTrailer(tid TypeID, size uint32) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	item := smallItem{next: noItem, prev: m.tail, typeUID: uint32(tid) << 1, size: size, chunkUID: metadataChunkUID}
	metadataChunkUID++
	m.updateTail(m.addSmall(&item))
}

// RemoveTrailer drops the record of the trailer at the end, which must be
// a complete trailer of type tid and size bytes
func (m *PacketMetadata) RemoveTrailer(tid TypeID, size uint32) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	if m.tail == noItem {
		if metadataChecking {
			panic(fmt.Errorf("removing unexpected trailer %s: no trailer recorded", tid))
		}
		return
	}
	uid := uint32(tid) << 1
	var item smallItem
	var extra extraItem
	read := m.readItems(m.tail, &item, &extra)
	if item.typeUID&^1 != uid || item.size != size {
		if metadataChecking {
			panic(fmt.Errorf("removing unexpected trailer %s of %d bytes", tid, size))
		}
		return
	} else if item.typeUID != uid && (extra.fragmentStart != 0 || extra.fragmentEnd != size) {
		if metadataChecking {
			panic(fmt.Errorf("removing incomplete trailer %s", tid))
		}
		return
	}
	if m.tail+read == m.used {
		m.used = m.tail
	}
	if m.head == m.tail {
		m.head = noItem
		m.tail = noItem
	} else {
		m.tail = item.prev
	}
}

// AddAtEnd appends the records of o, merging o's first chunk into our last
// one when both are adjacent pieces of the same chunk
func (m *PacketMetadata) AddAtEnd(o *PacketMetadata) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	if m.tail == noItem {
		if o.packetUID == m.packetUID {
			m.assign(o)
			return
		}
		// big records carry o's packet uid explicitly
		o.each(func(item *smallItem, extra *extraItem) {
			m.updateTail(m.addBig(noItem, m.tail, item, extra))
		})
		return
	}
	if o == m {
		o = m.Copy()
		defer o.Release()
	}
	var lastItem smallItem
	var lastExtra extraItem
	lastTailSize := int(m.readItems(m.tail, &lastItem, &lastExtra))
	if int(m.tail)+lastTailSize == int(m.used) && m.used == m.data.dirtyEnd {
		lastTailSize = len(m.data.bytes) - int(m.tail)
	}
	current := o.head
	for current != noItem {
		var item smallItem
		var extra extraItem
		o.readItems(current, &item, &extra)
		if extra.packetUID == lastExtra.packetUID &&
			item.typeUID == lastItem.typeUID &&
			item.chunkUID == lastItem.chunkUID &&
			item.size == lastItem.size &&
			extra.fragmentStart == lastExtra.fragmentEnd {
			lastExtra.fragmentEnd = extra.fragmentEnd
			m.replaceTail(&lastItem, &lastExtra, lastTailSize)
		} else {
			m.updateTail(m.addBig(noItem, m.tail, &item, &extra))
		}
		if current == o.tail {
			break
		}
		current = item.next
	}
}

// AddPaddingAtEnd records nothing; padding bytes are not described by metadata
func (m *PacketMetadata) AddPaddingAtEnd(size uint32) {
	if !metadataEnabled {
		metadataSkipped = true
	}
}

// RemoveAtStart drops the records of the first n bytes, turning a partly
// removed chunk into a fragment
func (m *PacketMetadata) RemoveAtStart(n uint32) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	left := n
	current := m.head
	for current != noItem && left > 0 {
		var item smallItem
		var extra extraItem
		m.readItems(current, &item, &extra)
		realSize := extra.fragmentEnd - extra.fragmentStart
		if realSize > left {
			fragment := newEmptyMetadata(m.packetUID)
			extra.fragmentStart += left
			left = 0
			fragment.updateTail(fragment.addBig(noItem, fragment.tail, &item, &extra))
			for current != m.tail {
				current = item.next
				m.readItems(current, &item, &extra)
				fragment.updateTail(fragment.addBig(noItem, fragment.tail, &item, &extra))
			}
			m.moveFrom(fragment)
			break
		}
		if m.head == m.tail {
			m.head = noItem
			m.tail = noItem
		} else {
			m.head = item.next
		}
		left -= realSize
		if current == m.tail {
			break
		}
		current = item.next
	}
	if left != 0 && metadataChecking {
		panic(fmt.Errorf("removing %d bytes more than the packet metadata records", left))
	}
}

// RemoveAtEnd drops the records of the last n bytes, turning a partly
// removed chunk into a fragment
func (m *PacketMetadata) RemoveAtEnd(n uint32) {
	if !metadataEnabled {
		metadataSkipped = true
		return
	}
	left := n
	current := m.tail
	for current != noItem && left > 0 {
		var item smallItem
		var extra extraItem
		m.readItems(current, &item, &extra)
		realSize := extra.fragmentEnd - extra.fragmentStart
		if realSize > left {
			fragment := newEmptyMetadata(m.packetUID)
			extra.fragmentEnd -= left
			left = 0
			fragment.updateHead(fragment.addBig(fragment.head, noItem, &item, &extra))
			for current != m.head {
				current = item.prev
				m.readItems(current, &item, &extra)
				fragment.updateHead(fragment.addBig(fragment.head, noItem, &item, &extra))
			}
			m.moveFrom(fragment)
			break
		}
		if m.head == m.tail {
			m.head = noItem
			m.tail = noItem
		} else {
			m.tail = item.prev
		}
		left -= realSize
		if current == m.head {
			break
		}
		current = item.prev
	}
	if left != 0 && metadataChecking {
		panic(fmt.Errorf("removing %d bytes more than the packet metadata records", left))
	}
}

// CreateFragment returns metadata for the bytes left after removing start
// bytes from the front and end bytes from the back
func (m *PacketMetadata) CreateFragment(start, end uint32) *PacketMetadata {
	fragment := m.Copy()
	fragment.RemoveAtStart(start)
	fragment.RemoveAtEnd(end)
	return fragment
}

// each calls fn on every record from head to tail
func (m *PacketMetadata) each(fn func(item *smallItem, extra *extraItem)) {
	current := m.head
	for current != noItem {
		var item smallItem
		var extra extraItem
		m.readItems(current, &item, &extra)
		fn(&item, &extra)
		if current == m.tail {
			break
		}
		if current == item.next {
			panic("packet metadata record links to itself")
		}
		current = item.next
	}
}

// TotalSize returns the number of bytes described by the records
func (m *PacketMetadata) TotalSize() uint32 {
	var total uint32
	m.each(func(item *smallItem, extra *extraItem) {
		total += extra.fragmentEnd - extra.fragmentStart
	})
	return total
}

// MetadataItem describes one chunk of a packet
type MetadataItem struct {
	Kind             TypeKind
	TID              TypeID
	IsFragment       bool
	CurrentSize      uint32
	TrimmedFromStart uint32
	TrimmedFromEnd   uint32

	// Current is positioned on the chunk's bytes: at the first byte of a
	// header, one past the last byte of a trailer.  It is only set for whole
	// headers and trailers
	Current Iterator
}

// ItemIterator walks the chunks of a packet, front to back
type ItemIterator struct {
	metadata    *PacketMetadata
	buffer      *Buffer
	current     uint16
	offset      uint32
	hasReadTail bool
}

// BeginItem returns an iterator over the chunks recorded in m, positioned on buffer's bytes
func (m *PacketMetadata) BeginItem(buffer *Buffer) *ItemIterator {
	return &ItemIterator{metadata: m, buffer: buffer, current: m.head}
}

// HasNext reports whether there are more chunks
func (it *ItemIterator) HasNext() bool {
	return it.current != noItem && !it.hasReadTail
}

// Next returns the next chunk
func (it *ItemIterator) Next() MetadataItem {
	var small smallItem
	var extra extraItem
	it.metadata.readItems(it.current, &small, &extra)
	if it.current == it.metadata.tail {
		it.hasReadTail = true
	}
	it.current = small.next

	tid := TypeID((small.typeUID &^ 1) >> 1)
	item := MetadataItem{
		TID:              tid,
		TrimmedFromStart: extra.fragmentStart,
		TrimmedFromEnd:   small.size - extra.fragmentEnd,
		CurrentSize:      extra.fragmentEnd - extra.fragmentStart,
		IsFragment:       extra.fragmentStart != 0 || extra.fragmentEnd != small.size,
	}
	switch kind := tid.Kind(); kind {
	case KindPayload:
		item.Kind = KindPayload
	case KindHeader:
		item.Kind = KindHeader
		if !item.IsFragment {
			j := it.buffer.Begin()
			j.Next(it.offset)
			item.Current = j
		}
	case KindTrailer:
		item.Kind = KindTrailer
		if !item.IsFragment {
			j := it.buffer.End()
			j.Prev(it.buffer.Size() - (it.offset + small.size))
			item.Current = j
		}
	default:
		panic(fmt.Errorf("packet metadata records a %s, %s", kind, tid))
	}
	it.offset += extra.fragmentEnd - extra.fragmentStart
	return item
}

// SerializedSize is the number of bytes Serialize writes
func (m *PacketMetadata) SerializedSize() uint32 {
	total := uint32(4 + 8)
	if !metadataEnabled {
		return total
	}
	m.each(func(item *smallItem, extra *extraItem) {
		uid := TypeID((item.typeUID &^ 1) >> 1)
		if uid == 0 {
			total += 4
		} else {
			total += 4 + uint32(len(uid.Name()))
		}
		total += 1 + 4 + 2 + 4 + 4 + 8
	})
	return total
}

// Serialize writes the records in a self-describing form that names chunk types
// rather than numbering them: the total size, the packet uid, then per record
// the type name's length and bytes (empty for payload), the fragment flag, the
// chunk size, chunk uid, fragment bounds and originating packet uid.  The
// return is false if dst is too small
func (m *PacketMetadata) Serialize(dst []byte) bool {
	size := m.SerializedSize()
	if uint32(len(dst)) < size {
		return false
	}
	w := NewTagBuffer(dst[:size])
	w.WriteU32(size)
	w.WriteU64(m.packetUID)
	if !metadataEnabled {
		return true
	}
	m.each(func(item *smallItem, extra *extraItem) {
		uid := TypeID((item.typeUID &^ 1) >> 1)
		if uid == 0 {
			w.WriteU32(0)
		} else {
			name := uid.Name()
			w.WriteU32(uint32(len(name)))
			w.Write([]byte(name))
		}
		w.WriteU8(uint8(item.typeUID & 1))
		w.WriteU32(item.size)
		w.WriteU16(item.chunkUID)
		w.WriteU32(extra.fragmentStart)
		w.WriteU32(extra.fragmentEnd)
		w.WriteU64(extra.packetUID)
	})
	return true
}

// Deserialize replaces m with what Serialize wrote into src.  The return is
// false if src is incomplete or names a type that is not registered
func (m *PacketMetadata) Deserialize(src []byte) bool {
	if len(src) < 12 {
		return false
	}
	r := NewTagBuffer(src)
	total := r.ReadU32()
	if total < 12 || uint32(len(src)) < total {
		return false
	}
	r.TrimAtEnd(uint32(len(src)) - total)
	fresh := newEmptyMetadata(r.ReadU64())
	for r.Remaining() > 0 {
		if r.Remaining() < 4 {
			fresh.Release()
			return false
		}
		nameLen := r.ReadU32()
		if r.Remaining() < nameLen+1+4+2+4+4+8 {
			fresh.Release()
			return false
		}
		var uid TypeID
		if nameLen > 0 {
			name := string(r.Read(nameLen))
			tid, present := LookupTypeID(name)
			if !present {
				logger.Warn("unknown chunk type in serialized packet metadata")
				fresh.Release()
				return false
			}
			uid = tid
		}
		var item smallItem
		var extra extraItem
		isBig := uint32(r.ReadU8() & 1)
		item.typeUID = uint32(uid)<<1 | isBig
		item.size = r.ReadU32()
		item.chunkUID = r.ReadU16()
		extra.fragmentStart = r.ReadU32()
		extra.fragmentEnd = r.ReadU32()
		extra.packetUID = r.ReadU64()
		fresh.updateTail(fresh.addBig(noItem, fresh.tail, &item, &extra))
	}
	m.moveFrom(fresh)
	return true
}

func (m *PacketMetadata) String() string {
	var sb strings.Builder
	m.each(func(item *smallItem, extra *extraItem) {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		tid := TypeID((item.typeUID &^ 1) >> 1)
		fmt.Fprintf(&sb, "%s(%d)[%d:%d]", tid, item.size, extra.fragmentStart, extra.fragmentEnd)
	})
	return sb.String()
}
