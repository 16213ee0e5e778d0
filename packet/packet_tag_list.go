package packet

// packet_tag_list.go holds PacketTagList, the tags attached to a packet as a
// whole.  The list is persistent: copies of a packet share the nodes of the
// list, each node counting the lists and nodes that point at it.  Adding a tag
// prepends a fresh node and so never disturbs a sibling.  Removing or replacing
// a tag mutates nodes in place up to the first shared node; past it, the nodes
// leading to the target are copied one at a time, so only the path to the
// target is unshared.

import (
	"fmt"
	"strings"
)

// PacketTagMaxSize is the largest serialized size of a packet tag
const PacketTagMaxSize = 21

type tagData struct {
	next  *tagData
	count uint32
	tid   TypeID
	size  uint32
	data  [PacketTagMaxSize]byte
}

// PacketTagList is a copy-on-write list of at most one tag of each type
type PacketTagList struct {
	head *tagData
}

func newTagData(tag Tag) *tagData {
	size := tag.SerializedSize()
	if size > PacketTagMaxSize {
		panic(fmt.Errorf("packet tag %s needs %d bytes, at most %d are available", tag.TypeID(), size, PacketTagMaxSize))
	}
	td := &tagData{count: 1, tid: tag.TypeID(), size: size}
	tag.Serialize(NewTagBuffer(td.data[:size]))
	return td
}

// Copy returns a list sharing every node with l
func (l *PacketTagList) Copy() PacketTagList {
	if l.head != nil {
		l.head.count += 1
	}
	return PacketTagList{head: l.head}
}

// Add prepends tag.  A tag of the same type must not already be present
func (l *PacketTagList) Add(tag Tag) {
	tid := tag.TypeID()
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.tid == tid {
			panic(fmt.Errorf("packet tag %s already present", tid))
		}
	}
	td := newTagData(tag)
	td.next = l.head
	l.head = td
}

// Peek fills tag from the list's tag of the same type, reporting whether there was one
func (l *PacketTagList) Peek(tag Tag) bool {
	tid := tag.TypeID()
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.tid == tid {
			tag.Deserialize(NewTagBuffer(cur.data[:cur.size]))
			return true
		}
	}
	return false
}

// cowWriter mutates the node cur, reached through *prevNext.  shared is true
// when nodes outside this list still point at cur
type cowWriter func(tag Tag, shared bool, cur *tagData, prevNext **tagData) bool

// cowTraverse finds the node holding tag's type, unsharing the nodes on the way
// to it if needed, and hands it to writer.  The return is false if there is no such node
func (l *PacketTagList) cowTraverse(tag Tag, writer cowWriter) bool {
	tid := tag.TypeID()
	prevNext := &l.head
	cur := l.head

	// nodes before the first shared one belong to this list alone
	for cur != nil {
		if cur.count > 1 {
			break
		}
		if cur.tid == tid {
			return writer(tag, false, cur, prevNext)
		}
		prevNext = &cur.next
		cur = cur.next
	}
	if cur == nil {
		return false
	}

	// past a branch point; nothing is copied unless the target is there
	present := false
	for p := cur; p != nil; p = p.next {
		if p.tid == tid {
			present = true
			break
		}
	}
	if !present {
		return false
	}

	for cur.tid != tid {
		cp := &tagData{count: 1, tid: cur.tid, size: cur.size, data: cur.data}
		cp.next = cur.next
		if cp.next != nil {
			cp.next.count += 1
		}
		*prevNext = cp
		cur.count -= 1
		prevNext = &cp.next
		cur = cp.next
	}
	return writer(tag, cur.count > 1, cur, prevNext)
}

func removeWriter(tag Tag, shared bool, cur *tagData, prevNext **tagData) bool {
	*prevNext = cur.next
	if shared {
		// cur lives on in other lists and still points at its successor
		cur.count -= 1
		if cur.next != nil {
			cur.next.count += 1
		}
	}
	return true
}

func replaceWriter(tag Tag, shared bool, cur *tagData, prevNext **tagData) bool {
	if !shared {
		size := tag.SerializedSize()
		if size > PacketTagMaxSize {
			panic(fmt.Errorf("packet tag %s needs %d bytes, at most %d are available", tag.TypeID(), size, PacketTagMaxSize))
		}
		cur.size = size
		tag.Serialize(NewTagBuffer(cur.data[:size]))
		return true
	}
	cp := newTagData(tag)
	cp.next = cur.next
	if cp.next != nil {
		cp.next.count += 1
	}
	*prevNext = cp
	cur.count -= 1
	return true
}

// Remove deletes the tag of tag's type, filling tag with its value first.
// The return reports whether there was one
func (l *PacketTagList) Remove(tag Tag) bool {
	found := l.Peek(tag)
	if !found {
		return false
	}
	return l.cowTraverse(tag, removeWriter)
}

// Replace overwrites the tag of tag's type, adding it if absent
func (l *PacketTagList) Replace(tag Tag) {
	if !l.cowTraverse(tag, replaceWriter) {
		l.Add(tag)
	}
}

// RemoveAll empties the list, giving up its share of every node
func (l *PacketTagList) RemoveAll() {
	for cur := l.head; cur != nil; cur = cur.next {
		cur.count -= 1
		if cur.count > 0 {
			break
		}
	}
	l.head = nil
}

// Release is RemoveAll under the name the other copy-on-write types use
func (l *PacketTagList) Release() {
	l.RemoveAll()
}

// PacketTagItem is one tag found while iterating a PacketTagList
type PacketTagItem struct {
	tid  TypeID
	data []byte
}

// TypeID returns the type of the tag
func (item PacketTagItem) TypeID() TypeID {
	return item.tid
}

// Tag fills tag, which must be of the item's type
func (item PacketTagItem) Tag(tag Tag) {
	if tag.TypeID() != item.tid {
		panic(fmt.Errorf("reading a %s tag into a %s", item.tid, tag.TypeID()))
	}
	tag.Deserialize(NewTagBuffer(item.data))
}

// Iterate calls fn on each tag, most recently added first, until fn returns false
func (l *PacketTagList) Iterate(fn func(item PacketTagItem) bool) {
	for cur := l.head; cur != nil; cur = cur.next {
		if !fn(PacketTagItem{tid: cur.tid, data: cur.data[:cur.size]}) {
			return
		}
	}
}

// Len returns the number of tags
func (l *PacketTagList) Len() int {
	n := 0
	for cur := l.head; cur != nil; cur = cur.next {
		n++
	}
	return n
}

func (l *PacketTagList) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for cur := l.head; cur != nil; cur = cur.next {
		if cur != l.head {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s/%d", cur.tid, cur.count)
	}
	sb.WriteString("}")
	return sb.String()
}
