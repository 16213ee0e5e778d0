package dcf

// state.go holds State, the per-queue bookkeeping the Manager arbitrates
// between: AIFSN, remaining backoff slots and when they started being
// counted, and the contention window.

import (
	"fmt"

	"github.com/iti/pktdcf/sim"
	"go.uber.org/zap"
)

// Listener receives the outcome of arbitration for one State.  Txop is the
// usual implementation
type Listener interface {
	NotifyAccessGranted()
	NotifyInternalCollision()
	NotifyCollision()
	NotifyChannelSwitching()
	NotifySleep()
	NotifyWakeUp()
	NotifyOff()
	NotifyOn()
}

// State is an access requestor registered with a Manager
type State struct {
	sched    sim.Scheduler
	listener Listener

	aifsn           uint32
	backoffSlots    uint32
	backoffStart    sim.Time
	cwMin           uint32
	cwMax           uint32
	cw              uint32
	accessRequested bool

	// qos states count the slot boundary that ends AIFS as a backoff slot
	qos bool
}

// CreateState is a constructor.  The scheduler supplies the time at which
// backoffs start
func CreateState(sched sim.Scheduler, listener Listener) *State {
	st := new(State)
	st.sched = sched
	st.listener = listener
	return st
}

// SetQoS selects EDCA slot counting
func (st *State) SetQoS(qos bool) {
	st.qos = qos
}

// IsQoS reports whether the state counts slots the EDCA way
func (st *State) IsQoS() bool {
	return st.qos
}

// SetAifsn sets the number of slots after SIFS the state waits before counting backoff
func (st *State) SetAifsn(aifsn uint32) {
	st.aifsn = aifsn
}

// Aifsn returns the AIFS slot count
func (st *State) Aifsn() uint32 {
	return st.aifsn
}

// SetCwMin sets the lower bound of the contention window, resetting the
// window if the bound changed
func (st *State) SetCwMin(cwMin uint32) {
	changed := st.cwMin != cwMin
	st.cwMin = cwMin
	if changed {
		st.ResetCw()
	}
}

// SetCwMax sets the upper bound of the contention window, resetting the
// window if the bound changed
func (st *State) SetCwMax(cwMax uint32) {
	changed := st.cwMax != cwMax
	st.cwMax = cwMax
	if changed {
		st.ResetCw()
	}
}

func (st *State) CwMin() uint32 { return st.cwMin }
func (st *State) CwMax() uint32 { return st.cwMax }
func (st *State) Cw() uint32    { return st.cw }

// ResetCw returns the contention window to its minimum
func (st *State) ResetCw() {
	st.cw = st.cwMin
}

// UpdateFailedCw doubles the contention window, as 2(cw+1)-1, up to its maximum
func (st *State) UpdateFailedCw() {
	st.cw = min(2*(st.cw+1)-1, st.cwMax)
}

// BackoffSlots returns the number of backoff slots not yet counted down
func (st *State) BackoffSlots() uint32 {
	return st.backoffSlots
}

// BackoffStart returns the time from which the remaining slots are counted
func (st *State) BackoffStart() sim.Time {
	return st.backoffStart
}

// StartBackoffNow begins a backoff of nSlots slots at the current time,
// replacing any backoff still being counted
func (st *State) StartBackoffNow(nSlots uint32) {
	if st.backoffSlots != 0 {
		logger.Debug("backoff restarted",
			zap.Int64("now", int64(st.sched.Now())),
			zap.Uint32("from", st.backoffSlots),
			zap.Uint32("slots", nSlots))
	} else {
		logger.Debug("backoff started",
			zap.Int64("now", int64(st.sched.Now())),
			zap.Uint32("slots", nSlots))
	}
	st.backoffSlots = nSlots
	st.backoffStart = st.sched.Now()
}

// updateBackoffSlotsNow records that nSlots slots were counted down, the last
// ending at bound
func (st *State) updateBackoffSlotsNow(nSlots uint32, bound sim.Time) {
	if nSlots > st.backoffSlots {
		panic(fmt.Errorf("counting down %d backoff slots with %d remaining", nSlots, st.backoffSlots))
	}
	st.backoffSlots -= nSlots
	st.backoffStart = bound
}

// IsAccessRequested reports whether the state is waiting for a grant
func (st *State) IsAccessRequested() bool {
	return st.accessRequested
}

// dropBackoff zeroes the backoff and contention window and forgets any
// request, as after a channel switch or power cycle
func (st *State) dropBackoff(now sim.Time) {
	if st.backoffSlots > 0 {
		st.updateBackoffSlotsNow(st.backoffSlots, now)
	}
	st.ResetCw()
	st.accessRequested = false
}

func (st *State) notifyAccessRequested() {
	st.accessRequested = true
}

func (st *State) notifyAccessGranted() {
	if !st.accessRequested {
		panic("access granted to a state that did not request it")
	}
	st.accessRequested = false
	st.listener.NotifyAccessGranted()
}

func (st *State) notifyCollision() {
	st.listener.NotifyCollision()
}

func (st *State) notifyInternalCollision() {
	st.listener.NotifyInternalCollision()
}
