package dcf

import (
	"github.com/iti/pktdcf/packet"
	"golang.org/x/exp/slices"
)

// QueueItem is a packet waiting for transmission with the header it will be sent under
type QueueItem struct {
	Packet *packet.Packet
	Header MacHeader
}

// MacQueue is the FIFO of frames a Txop contends for the medium to send.
// A queue with a positive MaxLen drops arrivals that find it full
type MacQueue struct {
	items  []QueueItem
	MaxLen int
	drop   func(item QueueItem)
}

// CreateMacQueue is a constructor
func CreateMacQueue(maxLen int) *MacQueue {
	mq := new(MacQueue)
	mq.MaxLen = maxLen
	return mq
}

// SetDropCallback names a function to call with every frame the queue drops
func (mq *MacQueue) SetDropCallback(drop func(item QueueItem)) {
	mq.drop = drop
}

// Enqueue adds a frame at the tail, reporting false if it was dropped instead
func (mq *MacQueue) Enqueue(p *packet.Packet, hdr MacHeader) bool {
	item := QueueItem{Packet: p, Header: hdr}
	if mq.MaxLen > 0 && len(mq.items) >= mq.MaxLen {
		if mq.drop != nil {
			mq.drop(item)
		}
		return false
	}
	mq.items = append(mq.items, item)
	return true
}

// PushFront puts a frame back at the head, where it goes first.  This bypasses the length limit
func (mq *MacQueue) PushFront(p *packet.Packet, hdr MacHeader) {
	mq.items = slices.Insert(mq.items, 0, QueueItem{Packet: p, Header: hdr})
}

// Dequeue removes and returns the head frame.  The queue must not be empty
func (mq *MacQueue) Dequeue() QueueItem {
	if len(mq.items) == 0 {
		panic("dequeue from an empty MAC queue")
	}
	item := mq.items[0]
	mq.items[0] = QueueItem{}
	mq.items = mq.items[1:]
	return item
}

// Peek returns the head frame without removing it
func (mq *MacQueue) Peek() (QueueItem, bool) {
	if len(mq.items) == 0 {
		return QueueItem{}, false
	}
	return mq.items[0], true
}

// Flush drops every frame
func (mq *MacQueue) Flush() {
	for _, item := range mq.items {
		if mq.drop != nil {
			mq.drop(item)
		}
	}
	mq.items = nil
}

// CountFor returns the number of frames addressed to addr
func (mq *MacQueue) CountFor(addr Mac48) int {
	count := 0
	for _, item := range mq.items {
		if item.Header.Addr1 == addr {
			count++
		}
	}
	return count
}

// IsEmpty reports whether there is nothing to send
func (mq *MacQueue) IsEmpty() bool {
	return len(mq.items) == 0
}

// Len returns the number of frames queued
func (mq *MacQueue) Len() int {
	return len(mq.items)
}
