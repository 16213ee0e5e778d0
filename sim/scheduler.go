package sim

// scheduler.go holds the Scheduler interface through which the MAC layer arms
// and cancels its timers, and EventList, a self-contained implementation
// driven by a min-priority heap on event times.  Events scheduled for the same
// instant fire in the order they were scheduled.

import (
	"container/heap"
)

// EventID identifies a scheduled event so that it can be cancelled
type EventID uint64

// NoEvent is never returned by Schedule
const NoEvent EventID = 0

// Scheduler is the timer service the channel access code depends on
type Scheduler interface {
	// Now is the current simulation time
	Now() Time

	// Schedule arranges for fn to be called delay after Now
	Schedule(delay Time, fn func()) EventID

	// Cancel withdraws a pending event.  Cancelling an event that already
	// fired, or was already cancelled, does nothing
	Cancel(id EventID)
}

// event is an entry in the EventList
type event struct {
	at    Time    // when the event fires
	seq   uint64  // order of scheduling, breaks ties
	id    EventID // handle given to the caller
	fn    func()  // what to do
	index int     // position in the heap, maintained by Swap
}

// eventHeap and its methods implement a min-priority heap
// on event times, ties broken by scheduling order
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	evt := x.(*event)
	evt.index = len(*h)
	*h = append(*h, evt)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[0 : n-1]
	return x
}

// EventList is a single threaded discrete event scheduler
type EventList struct {
	now     Time
	nxtSeq  uint64
	pending eventHeap
	byID    map[EventID]*event
	stopped bool
}

// CreateEventList is a constructor
func CreateEventList() *EventList {
	el := new(EventList)
	el.pending = eventHeap{}
	el.byID = make(map[EventID]*event)
	heap.Init(&el.pending)
	return el
}

// Now returns the time of the event being executed, or of the last one executed
func (el *EventList) Now() Time {
	return el.now
}

// Schedule puts fn on the list to be called delay after the current time
func (el *EventList) Schedule(delay Time, fn func()) EventID {
	if delay < 0 {
		panic("negative delay in event scheduling")
	}
	return el.ScheduleAt(el.now+delay, fn)
}

// ScheduleAt puts fn on the list to be called at an absolute time, which may not be in the past
func (el *EventList) ScheduleAt(at Time, fn func()) EventID {
	if at < el.now {
		panic("event scheduled in the past")
	}
	el.nxtSeq += 1
	evt := &event{at: at, seq: el.nxtSeq, id: EventID(el.nxtSeq), fn: fn}
	heap.Push(&el.pending, evt)
	el.byID[evt.id] = evt
	return evt.id
}

// Cancel removes the event from the list if it has not yet fired
func (el *EventList) Cancel(id EventID) {
	evt, present := el.byID[id]
	if !present {
		return
	}
	delete(el.byID, id)
	heap.Remove(&el.pending, evt.index)
}

// IsPending reports whether the identified event is still waiting to fire
func (el *EventList) IsPending(id EventID) bool {
	_, present := el.byID[id]
	return present
}

// Pending returns the number of events waiting to fire
func (el *EventList) Pending() int {
	return el.pending.Len()
}

// Stop makes Run return after the event currently executing
func (el *EventList) Stop() {
	el.stopped = true
}

// Run executes events until the list is empty or Stop is called
func (el *EventList) Run() {
	el.RunUntil(MaxTime)
}

// RunUntil executes events whose time is no later than limit.  On return the
// current time is limit unless the list emptied, or was stopped, earlier
func (el *EventList) RunUntil(limit Time) {
	el.stopped = false
	for el.pending.Len() > 0 && !el.stopped {
		if el.pending[0].at > limit {
			el.now = limit
			return
		}
		evt := heap.Pop(&el.pending).(*event)
		delete(el.byID, evt.id)
		el.now = evt.at
		evt.fn()
	}
}
