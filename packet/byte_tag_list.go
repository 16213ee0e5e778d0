package packet

// byte_tag_list.go holds ByteTagList, tags attached to byte ranges of a packet.
// Ranges are kept relative to a per-list adjustment so that shifting every tag
// (when a header is pushed or popped) is a single addition.  The item store is
// shared between copies; a copy appends in place as long as nobody else has
// appended past the point it shares, and copies the store otherwise.

import (
	"fmt"
	"math"
	"strings"
)

type byteTagItem struct {
	tid   TypeID
	start int32
	end   int32
	data  []byte
}

type byteTagStore struct {
	count uint32
	dirty int
	items []byteTagItem
}

// ByteTagList is a copy-on-write collection of byte range tags
type ByteTagList struct {
	data       *byteTagStore
	used       int
	adjustment int32
	minStart   int32
	maxEnd     int32
}

// NewByteTagList returns an empty list
func NewByteTagList() ByteTagList {
	return ByteTagList{minStart: math.MaxInt32, maxEnd: math.MinInt32}
}

// Copy returns a list sharing l's store
func (l *ByteTagList) Copy() ByteTagList {
	if l.data != nil {
		l.data.count += 1
	}
	return *l
}

// Release gives up l's share of the store and empties l
func (l *ByteTagList) Release() {
	if l.data != nil {
		l.data.count -= 1
	}
	*l = NewByteTagList()
}

// RemoveAll empties the list
func (l *ByteTagList) RemoveAll() {
	l.Release()
}

// Add records a tag of type tid covering [start, end) and returns the buffer
// into which the caller serializes size bytes of tag data
func (l *ByteTagList) Add(tid TypeID, size uint32, start, end int32) *TagBuffer {
	switch {
	case l.data == nil:
		l.data = &byteTagStore{count: 1}
	case l.data.count != 1 && l.data.dirty != l.used:
		// someone else appended past our share; take a private copy
		priv := &byteTagStore{count: 1, items: make([]byteTagItem, l.used, l.used+1)}
		copy(priv.items, l.data.items[:l.used])
		l.data.count -= 1
		l.data = priv
	}
	item := byteTagItem{tid: tid, start: start - l.adjustment, end: end - l.adjustment, data: make([]byte, size)}
	l.minStart = min(l.minStart, item.start)
	l.maxEnd = max(l.maxEnd, item.end)
	l.data.items = append(l.data.items[:l.used], item)
	l.used += 1
	l.data.dirty = l.used
	return NewTagBuffer(item.data)
}

// AddList adds every tag of o
func (l *ByteTagList) AddList(o *ByteTagList) {
	it := o.BeginAll()
	for it.HasNext() {
		item := it.Next()
		buf := l.Add(item.TID, item.Size, item.Start, item.End)
		buf.CopyFrom(*item.buf)
	}
}

// Adjust shifts every tag by delta bytes
func (l *ByteTagList) Adjust(delta int32) {
	l.adjustment += delta
}

// AddAtEnd clips tags to end at appendOffset, dropping those starting at or after it
func (l *ByteTagList) AddAtEnd(appendOffset int32) {
	if l.maxEnd <= appendOffset-l.adjustment {
		return
	}
	list := NewByteTagList()
	it := l.BeginAll()
	for it.HasNext() {
		item := it.Next()
		if item.Start >= appendOffset {
			continue
		}
		if item.End > appendOffset {
			item.End = appendOffset
		}
		buf := list.Add(item.TID, item.Size, item.Start, item.End)
		buf.CopyFrom(*item.buf)
	}
	l.Release()
	*l = list
}

// AddAtStart clips tags to start at prependOffset, dropping those ending at or before it
func (l *ByteTagList) AddAtStart(prependOffset int32) {
	if l.minStart >= prependOffset-l.adjustment {
		return
	}
	list := NewByteTagList()
	it := l.BeginAll()
	for it.HasNext() {
		item := it.Next()
		if item.End <= prependOffset {
			continue
		}
		if item.Start < prependOffset {
			item.Start = prependOffset
		}
		buf := list.Add(item.TID, item.Size, item.Start, item.End)
		buf.CopyFrom(*item.buf)
	}
	l.Release()
	*l = list
}

// Len returns the number of tags, whatever their range
func (l *ByteTagList) Len() int {
	return l.used
}

// Begin returns an iterator on the tags overlapping [offsetStart, offsetEnd),
// with ranges clipped to it
func (l *ByteTagList) Begin(offsetStart, offsetEnd int32) *ByteTagListIterator {
	it := &ByteTagListIterator{offsetStart: offsetStart, offsetEnd: offsetEnd, adjustment: l.adjustment}
	if l.data != nil {
		it.items = l.data.items[:l.used]
	}
	it.prepareForNext()
	return it
}

// BeginAll returns an iterator on every tag
func (l *ByteTagList) BeginAll() *ByteTagListIterator {
	return l.Begin(math.MinInt32, math.MaxInt32)
}

func (l *ByteTagList) String() string {
	var sb strings.Builder
	it := l.BeginAll()
	for it.HasNext() {
		item := it.Next()
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s [%d, %d)", item.TID, item.Start, item.End)
	}
	return sb.String()
}

// ByteTagItem is one tag found by a ByteTagListIterator
type ByteTagItem struct {
	TID   TypeID
	Size  uint32
	Start int32
	End   int32
	buf   *TagBuffer
}

// Tag fills tag, which must be of the item's type
func (item ByteTagItem) Tag(tag Tag) {
	if tag.TypeID() != item.TID {
		panic(fmt.Errorf("reading a %s tag into a %s", item.TID, tag.TypeID()))
	}
	tb := *item.buf
	tag.Deserialize(&tb)
}

// ByteTagListIterator walks the tags of a ByteTagList overlapping a range
type ByteTagListIterator struct {
	items       []byteTagItem
	current     int
	offsetStart int32
	offsetEnd   int32
	adjustment  int32
}

func (it *ByteTagListIterator) prepareForNext() {
	for it.current < len(it.items) {
		item := &it.items[it.current]
		if item.start+it.adjustment >= it.offsetEnd || item.end+it.adjustment <= it.offsetStart {
			it.current++
			continue
		}
		return
	}
}

// HasNext reports whether Next has another tag to return
func (it *ByteTagListIterator) HasNext() bool {
	return it.current < len(it.items)
}

// Next returns the next tag
func (it *ByteTagListIterator) Next() ByteTagItem {
	if !it.HasNext() {
		panic("byte tag iterator past its end")
	}
	raw := &it.items[it.current]
	item := ByteTagItem{
		TID:   raw.tid,
		Size:  uint32(len(raw.data)),
		Start: max(raw.start+it.adjustment, it.offsetStart),
		End:   min(raw.end+it.adjustment, it.offsetEnd),
		buf:   NewTagBuffer(raw.data),
	}
	it.current++
	it.prepareForNext()
	return item
}

// OffsetStart returns the start of the range the iterator was made for
func (it *ByteTagListIterator) OffsetStart() int32 {
	return it.offsetStart
}
