package sim

// evtm.go adapts the evtm event manager to the Scheduler interface, so that
// stations can be placed in experiments whose other components schedule
// their own events through evtm handlers.

import (
	"github.com/iti/evt/evtm"
)

// pendingEvt remembers what to run when an evtm event fires, and when it was meant to fire.
// The integral time is kept here because converting vrtime back to nanoseconds may round
type pendingEvt struct {
	at Time
	fn func()
}

// EvtmScheduler implements Scheduler on top of an evtm.EventManager
type EvtmScheduler struct {
	EvtMgr  *evtm.EventManager
	now     Time
	nxtID   EventID
	pending map[EventID]pendingEvt
}

// CreateEvtmScheduler is a constructor.  If evtMgr is nil a new event manager is created
func CreateEvtmScheduler(evtMgr *evtm.EventManager) *EvtmScheduler {
	if evtMgr == nil {
		evtMgr = evtm.New()
	}
	es := new(EvtmScheduler)
	es.EvtMgr = evtMgr
	es.pending = make(map[EventID]pendingEvt)
	return es
}

// Now returns the scheduled time of the most recently fired event
func (es *EvtmScheduler) Now() Time {
	return es.now
}

// Schedule hands the callback to evtm, keyed by a fresh event identity
func (es *EvtmScheduler) Schedule(delay Time, fn func()) EventID {
	if delay < 0 {
		panic("negative delay in event scheduling")
	}
	es.nxtID += 1
	id := es.nxtID
	es.pending[id] = pendingEvt{at: es.now + delay, fn: fn}
	es.EvtMgr.Schedule(es, id, fireEvent, delay.VrTime())
	return id
}

// Cancel forgets the callback; the evtm event still fires but does nothing
func (es *EvtmScheduler) Cancel(id EventID) {
	delete(es.pending, id)
}

// Pending returns the number of scheduled callbacks that have not fired or been cancelled
func (es *EvtmScheduler) Pending() int {
	return len(es.pending)
}

// Run executes the evtm event loop until the given simulation time
func (es *EvtmScheduler) Run(limit Time) {
	es.EvtMgr.Run(limit.Seconds())
}

// fireEvent is the evtm event handler for every callback scheduled through an EvtmScheduler
func fireEvent(evtMgr *evtm.EventManager, context any, data any) any {
	es := context.(*EvtmScheduler)
	id := data.(EventID)
	pe, present := es.pending[id]
	if !present {
		return nil
	}
	delete(es.pending, id)
	es.now = pe.at
	pe.fn()
	return nil
}
