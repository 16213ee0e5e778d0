package dcf

// manager.go holds Manager, the arbiter that decides which of a station's
// queues may transmit, and when.  The manager does not hold a single state
// variable for the medium.  Instead it records when each kind of activity
// (reception, transmission, NAV, CCA busy, timeouts, channel switching)
// last started and how long it lasts, and works out from those what is true
// at the current instant.  At most one access timeout is outstanding on the
// scheduler, set for the earliest backoff end among the waiting states.

import (
	"fmt"

	"github.com/iti/pktdcf/sim"
	"go.uber.org/zap"
)

// Manager arbitrates channel access among registered States.  States
// registered earlier have priority over those registered later
type Manager struct {
	sched  sim.Scheduler
	states []*State

	lastAckTimeoutEnd     sim.Time
	lastCtsTimeoutEnd     sim.Time
	lastNavStart          sim.Time
	lastNavDuration       sim.Time
	lastRxStart           sim.Time
	lastRxDuration        sim.Time
	lastRxReceivedOk      bool
	lastRxEnd             sim.Time
	lastTxStart           sim.Time
	lastTxDuration        sim.Time
	lastBusyStart         sim.Time
	lastBusyDuration      sim.Time
	lastSwitchingStart    sim.Time
	lastSwitchingDuration sim.Time

	rxing    bool
	sleeping bool
	off      bool

	slot       sim.Time
	sifs       sim.Time
	eifsNoDifs sim.Time

	accessTimeout   sim.EventID
	accessTimeoutAt sim.Time
}

// CreateManager is a constructor
func CreateManager(sched sim.Scheduler) *Manager {
	mgr := new(Manager)
	mgr.sched = sched
	mgr.lastRxReceivedOk = true
	mgr.accessTimeout = sim.NoEvent
	return mgr
}

// SetSlot sets the slot duration
func (mgr *Manager) SetSlot(slot sim.Time) {
	if slot <= 0 {
		panic(fmt.Errorf("slot duration %v is not positive", slot))
	}
	mgr.slot = slot
}

// SetSifs sets the short interframe space
func (mgr *Manager) SetSifs(sifs sim.Time) {
	mgr.sifs = sifs
}

// SetEifsNoDifs sets the extra wait, beyond SIFS, after a reception that ended in error
func (mgr *Manager) SetEifsNoDifs(eifsNoDifs sim.Time) {
	mgr.eifsNoDifs = eifsNoDifs
}

func (mgr *Manager) Slot() sim.Time       { return mgr.slot }
func (mgr *Manager) Sifs() sim.Time       { return mgr.sifs }
func (mgr *Manager) EifsNoDifs() sim.Time { return mgr.eifsNoDifs }

// Add registers a state, at a lower priority than those already registered
func (mgr *Manager) Add(st *State) {
	mgr.states = append(mgr.states, st)
}

// Now is the scheduler's current time
func (mgr *Manager) Now() sim.Time {
	return mgr.sched.Now()
}

// IsBusy reports whether the medium is busy, physically or by NAV
func (mgr *Manager) IsBusy() bool {
	now := mgr.sched.Now()
	if mgr.rxing {
		return true
	}
	if mgr.lastTxStart+mgr.lastTxDuration > now {
		return true
	}
	if mgr.lastNavStart+mgr.lastNavDuration > now {
		return true
	}
	if mgr.lastBusyStart+mgr.lastBusyDuration > now {
		return true
	}
	return false
}

// isWithinAifs reports whether st's AIFS since the medium last went idle has yet to elapse
func (mgr *Manager) isWithinAifs(st *State) bool {
	ifsEnd := mgr.AccessGrantStart() + sim.Time(st.aifsn)*mgr.slot
	return ifsEnd > mgr.sched.Now()
}

// RequestAccess asks for st to be granted the medium.  The state's listener
// hears the outcome, possibly before RequestAccess returns
func (mgr *Manager) RequestAccess(st *State) {
	if mgr.sleeping || mgr.off {
		return
	}
	mgr.updateBackoff()
	if st.accessRequested {
		panic("access requested by a state already waiting for it")
	}
	st.notifyAccessRequested()

	now := mgr.sched.Now()

	// a queue of this station is transmitting.  The end of that exchange
	// restarts access for whoever still needs it
	if mgr.lastTxStart+mgr.lastTxDuration > now {
		logger.Debug("internal collision, currently transmitting", zap.Int64("now", int64(now)))
		st.notifyInternalCollision()
		mgr.restartAccessTimeoutIfNeeded()
		return
	}

	// without a backoff to count the state may not simply wait for the medium to
	// clear.  The collision has it draw one
	if st.backoffSlots == 0 {
		if mgr.IsBusy() {
			logger.Debug("medium busy, collision", zap.Int64("now", int64(now)))
			st.notifyCollision()
			mgr.restartAccessTimeoutIfNeeded()
			return
		}
		if mgr.isWithinAifs(st) {
			logger.Debug("request within AIFS, collision", zap.Int64("now", int64(now)))
			st.notifyCollision()
			mgr.restartAccessTimeoutIfNeeded()
			return
		}
	}
	mgr.doGrantAccess()
	mgr.restartAccessTimeoutIfNeeded()
}

// doGrantAccess grants the medium to the highest priority state whose backoff
// has ended, and tells the other states whose backoff has ended that they lost
func (mgr *Manager) doGrantAccess() {
	now := mgr.sched.Now()
	for idx, st := range mgr.states {
		if !st.accessRequested || mgr.BackoffEndFor(st) > now {
			continue
		}
		logger.Debug("access granted",
			zap.Int64("now", int64(now)),
			zap.Int("state", idx),
			zap.Uint32("slots", st.backoffSlots))

		// work out who collides before notifying anyone, as the
		// notifications change what the manager would compute
		var losers []*State
		for _, other := range mgr.states[idx+1:] {
			if other.accessRequested && mgr.BackoffEndFor(other) <= now {
				losers = append(losers, other)
			}
		}
		st.notifyAccessGranted()
		for _, other := range losers {
			logger.Debug("internal collision", zap.Int64("now", int64(now)), zap.Uint32("slots", other.backoffSlots))
			other.notifyInternalCollision()
		}
		return
	}
}

// accessTimeoutFired is the handler of the access timeout event
func (mgr *Manager) accessTimeoutFired() {
	mgr.accessTimeout = sim.NoEvent
	mgr.updateBackoff()
	mgr.doGrantAccess()
	mgr.restartAccessTimeoutIfNeeded()
}

// AccessGrantStart returns the earliest time at which access may be granted,
// SIFS after the end of the latest activity on the medium
func (mgr *Manager) AccessGrantStart() sim.Time {
	var rxAccessStart sim.Time
	if mgr.rxing {
		rxAccessStart = mgr.lastRxStart + mgr.lastRxDuration + mgr.sifs
	} else {
		rxAccessStart = mgr.lastRxEnd + mgr.sifs
		if !mgr.lastRxReceivedOk {
			rxAccessStart += mgr.eifsNoDifs
		}
	}
	busyAccessStart := mgr.lastBusyStart + mgr.lastBusyDuration + mgr.sifs
	txAccessStart := mgr.lastTxStart + mgr.lastTxDuration + mgr.sifs
	navAccessStart := mgr.lastNavStart + mgr.lastNavDuration + mgr.sifs
	ackTimeoutAccessStart := mgr.lastAckTimeoutEnd + mgr.sifs
	ctsTimeoutAccessStart := mgr.lastCtsTimeoutEnd + mgr.sifs
	switchingAccessStart := mgr.lastSwitchingStart + mgr.lastSwitchingDuration + mgr.sifs
	return sim.Max(rxAccessStart, busyAccessStart, txAccessStart, navAccessStart,
		ackTimeoutAccessStart, ctsTimeoutAccessStart, switchingAccessStart)
}

// BackoffStartFor returns the time from which st's remaining backoff slots are counted
func (mgr *Manager) BackoffStartFor(st *State) sim.Time {
	return sim.Max(st.backoffStart, mgr.AccessGrantStart()+sim.Time(st.aifsn)*mgr.slot)
}

// BackoffEndFor returns the time at which st's backoff ends if the medium stays idle
func (mgr *Manager) BackoffEndFor(st *State) sim.Time {
	return mgr.BackoffStartFor(st) + sim.Time(st.backoffSlots)*mgr.slot
}

// updateBackoff counts down, for every state, the whole slots of idle medium
// that passed since its backoff count was last brought up to date
func (mgr *Manager) updateBackoff() {
	now := mgr.sched.Now()
	for _, st := range mgr.states {
		backoffStart := mgr.BackoffStartFor(st)
		if backoffStart > now {
			continue
		}
		nIntSlots := uint32((now - backoffStart) / mgr.slot)

		// EDCA decrements once at the slot boundary that ends AIFS and then
		// once per idle slot; DCF only once per idle slot after DIFS
		if st.qos {
			nIntSlots++
		}
		n := min(nIntSlots, st.backoffSlots)
		st.updateBackoffSlotsNow(n, backoffStart+sim.Time(n)*mgr.slot)
	}
}

// restartAccessTimeoutIfNeeded makes sure the access timeout is set for the
// earliest backoff end among the waiting states, if one is in the future
func (mgr *Manager) restartAccessTimeoutIfNeeded() {
	now := mgr.sched.Now()
	needed := false
	expectedBackoffEnd := sim.MaxTime
	for _, st := range mgr.states {
		if !st.accessRequested {
			continue
		}
		end := mgr.BackoffEndFor(st)
		if end > now {
			needed = true
			expectedBackoffEnd = min(expectedBackoffEnd, end)
		}
	}
	if !needed {
		return
	}
	if mgr.accessTimeout != sim.NoEvent && mgr.accessTimeoutAt > expectedBackoffEnd {
		mgr.cancelAccessTimeout()
	}
	if mgr.accessTimeout == sim.NoEvent {
		mgr.accessTimeoutAt = expectedBackoffEnd
		mgr.accessTimeout = mgr.sched.Schedule(expectedBackoffEnd-now, mgr.accessTimeoutFired)
	}
}

func (mgr *Manager) cancelAccessTimeout() {
	if mgr.accessTimeout != sim.NoEvent {
		mgr.sched.Cancel(mgr.accessTimeout)
		mgr.accessTimeout = sim.NoEvent
	}
}

// AccessTimeoutPending reports whether an access timeout is set, and for when
func (mgr *Manager) AccessTimeoutPending() (sim.Time, bool) {
	return mgr.accessTimeoutAt, mgr.accessTimeout != sim.NoEvent
}

// NotifyRxStartNow records that the PHY started receiving a frame lasting duration
func (mgr *Manager) NotifyRxStartNow(duration sim.Time) {
	logger.Debug("rx start", zap.Int64("now", int64(mgr.sched.Now())), zap.Int64("duration", int64(duration)))
	mgr.updateBackoff()
	mgr.lastRxStart = mgr.sched.Now()
	mgr.lastRxDuration = duration
	mgr.rxing = true
}

// NotifyRxEndOkNow records that the frame being received arrived intact
func (mgr *Manager) NotifyRxEndOkNow() {
	mgr.lastRxEnd = mgr.sched.Now()
	mgr.lastRxReceivedOk = true
	mgr.rxing = false
}

// NotifyRxEndErrorNow records that the frame being received was corrupt, which
// makes the next access wait EIFS
func (mgr *Manager) NotifyRxEndErrorNow() {
	mgr.lastRxEnd = mgr.sched.Now()
	mgr.lastRxReceivedOk = false
	mgr.rxing = false
}

// NotifyTxStartNow records that the station started transmitting for duration
func (mgr *Manager) NotifyTxStartNow(duration sim.Time) {
	now := mgr.sched.Now()
	if mgr.rxing {
		// only a reception that began inside SIFS can be overridden by a transmission
		if now-mgr.lastRxStart > mgr.sifs {
			panic(fmt.Errorf("transmission at %v during a reception that started at %v", now, mgr.lastRxStart))
		}
		mgr.lastRxEnd = now
		mgr.lastRxDuration = mgr.lastRxEnd - mgr.lastRxStart
		mgr.lastRxReceivedOk = true
		mgr.rxing = false
	}
	logger.Debug("tx start", zap.Int64("now", int64(now)), zap.Int64("duration", int64(duration)))
	mgr.updateBackoff()
	mgr.lastTxStart = now
	mgr.lastTxDuration = duration
}

// NotifyMaybeCcaBusyStartNow records that clear channel assessment reports the medium busy for duration
func (mgr *Manager) NotifyMaybeCcaBusyStartNow(duration sim.Time) {
	mgr.updateBackoff()
	mgr.lastBusyStart = mgr.sched.Now()
	mgr.lastBusyDuration = duration
}

// NotifySwitchingStartNow records a channel switch lasting duration.  Every
// activity in progress is cut short, and every state loses its backoff,
// contention window and pending request
func (mgr *Manager) NotifySwitchingStartNow(duration sim.Time) {
	now := mgr.sched.Now()
	if mgr.lastTxStart+mgr.lastTxDuration > now {
		panic("channel switch during a transmission")
	}
	if mgr.lastSwitchingStart+mgr.lastSwitchingDuration > now {
		panic("channel switch during a channel switch")
	}
	if mgr.rxing {
		mgr.lastRxEnd = now
		mgr.lastRxDuration = mgr.lastRxEnd - mgr.lastRxStart
		mgr.lastRxReceivedOk = true
		mgr.rxing = false
	}
	if mgr.lastNavStart+mgr.lastNavDuration > now {
		mgr.lastNavDuration = now - mgr.lastNavStart
	}
	if mgr.lastBusyStart+mgr.lastBusyDuration > now {
		mgr.lastBusyDuration = now - mgr.lastBusyStart
	}
	mgr.lastAckTimeoutEnd = min(mgr.lastAckTimeoutEnd, now)
	mgr.lastCtsTimeoutEnd = min(mgr.lastCtsTimeoutEnd, now)

	mgr.cancelAccessTimeout()
	for _, st := range mgr.states {
		st.dropBackoff(now)
		st.listener.NotifyChannelSwitching()
	}
	logger.Debug("switching start", zap.Int64("now", int64(now)), zap.Int64("duration", int64(duration)))
	mgr.lastSwitchingStart = now
	mgr.lastSwitchingDuration = duration
}

// NotifySleepNow puts the manager to sleep; requests are ignored until NotifyWakeupNow
func (mgr *Manager) NotifySleepNow() {
	mgr.sleeping = true
	mgr.cancelAccessTimeout()
	for _, st := range mgr.states {
		st.listener.NotifySleep()
	}
}

// NotifyWakeupNow wakes the manager, clearing every state's backoff
func (mgr *Manager) NotifyWakeupNow() {
	mgr.sleeping = false
	now := mgr.sched.Now()
	for _, st := range mgr.states {
		st.dropBackoff(now)
		st.listener.NotifyWakeUp()
	}
}

// NotifyOffNow powers the manager off; requests are ignored until NotifyOnNow
func (mgr *Manager) NotifyOffNow() {
	mgr.off = true
	mgr.cancelAccessTimeout()
	for _, st := range mgr.states {
		st.listener.NotifyOff()
	}
}

// NotifyOnNow powers the manager on, clearing every state's backoff
func (mgr *Manager) NotifyOnNow() {
	mgr.off = false
	now := mgr.sched.Now()
	for _, st := range mgr.states {
		st.dropBackoff(now)
		st.listener.NotifyOn()
	}
}

// IsSleeping reports whether the manager is asleep
func (mgr *Manager) IsSleeping() bool {
	return mgr.sleeping
}

// IsOff reports whether the manager is powered off
func (mgr *Manager) IsOff() bool {
	return mgr.off
}

// NotifyNavResetNow replaces the NAV with one lasting duration from now, even
// if that ends it earlier
func (mgr *Manager) NotifyNavResetNow(duration sim.Time) {
	mgr.updateBackoff()
	mgr.lastNavStart = mgr.sched.Now()
	mgr.lastNavDuration = duration
	mgr.updateBackoff()

	// an earlier end of NAV can mean an earlier end of backoff
	mgr.restartAccessTimeoutIfNeeded()
}

// NotifyNavStartNow extends the NAV to last at least duration from now.  It never shortens it
func (mgr *Manager) NotifyNavStartNow(duration sim.Time) {
	now := mgr.sched.Now()
	if mgr.lastNavStart > now {
		panic("NAV started in the future")
	}
	mgr.updateBackoff()
	newNavEnd := now + duration
	if newNavEnd > mgr.lastNavStart+mgr.lastNavDuration {
		mgr.lastNavStart = now
		mgr.lastNavDuration = duration
	}
}

// NotifyAckTimeoutStartNow records that an ACK is awaited for duration
func (mgr *Manager) NotifyAckTimeoutStartNow(duration sim.Time) {
	now := mgr.sched.Now()
	if mgr.lastAckTimeoutEnd >= now {
		panic("ACK timeout started while one is running")
	}
	mgr.lastAckTimeoutEnd = now + duration
}

// NotifyAckTimeoutResetNow records that the awaited ACK arrived
func (mgr *Manager) NotifyAckTimeoutResetNow() {
	mgr.lastAckTimeoutEnd = mgr.sched.Now()
	mgr.restartAccessTimeoutIfNeeded()
}

// NotifyCtsTimeoutStartNow records that a CTS is awaited for duration
func (mgr *Manager) NotifyCtsTimeoutStartNow(duration sim.Time) {
	mgr.lastCtsTimeoutEnd = mgr.sched.Now() + duration
}

// NotifyCtsTimeoutResetNow records that the awaited CTS arrived
func (mgr *Manager) NotifyCtsTimeoutResetNow() {
	mgr.lastCtsTimeoutEnd = mgr.sched.Now()
	mgr.restartAccessTimeoutIfNeeded()
}
