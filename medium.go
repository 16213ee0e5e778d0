package pktdcf

// medium.go holds Medium, the shared radio channel of an experiment.  A frame
// put on the medium reaches every powered station linked to the sender that
// is not itself transmitting.  Frames that overlap at a receiver corrupt one
// another; a frame that arrives alone is still lost with probability
// ErrorRate.

import (
	"math"

	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"github.com/iti/rngstream"
	"go.uber.org/zap"
)

// Medium carries frames between stations
type Medium struct {
	Preamble  sim.Time
	RateMbps  float64
	ErrorRate float64

	sched   sim.Scheduler
	rngstrm *rngstream.RngStream
	hears   func(id int) []int
	radios  map[int]*radio
}

// radio is what the medium knows of one attached station
type radio struct {
	station *Station
	txEnd   sim.Time

	// energyEnd is the latest end of any signal heard
	energyEnd sim.Time

	rx *reception
}

// reception is a frame arriving at a radio
type reception struct {
	frame   *packet.Packet
	from    int
	corrupt bool
	end     sim.EventID
}

// CreateMedium is a constructor.  hears lists, for a station id, the ids
// of the stations within range of it
func CreateMedium(sched sim.Scheduler, preamble sim.Time, rateMbps, errorRate float64,
	rngName string, hears func(id int) []int) *Medium {
	if rateMbps <= 0 {
		panic("medium rate must be positive")
	}
	md := new(Medium)
	md.sched = sched
	md.Preamble = preamble
	md.RateMbps = rateMbps
	md.ErrorRate = errorRate
	md.rngstrm = rngstream.New(rngName)
	md.hears = hears
	md.radios = make(map[int]*radio)
	return md
}

// Attach connects a station to the medium
func (md *Medium) Attach(st *Station) {
	md.radios[st.ID] = &radio{station: st}
}

// TxDuration is the time needed to send a frame of size bytes, preamble included
func (md *Medium) TxDuration(size uint32) sim.Time {
	bits := float64(size) * 8
	return md.Preamble + sim.Time(math.Ceil(bits*1000/md.RateMbps))
}

// IsTransmitting reports whether the station is on the air
func (md *Medium) IsTransmitting(id int) bool {
	rd, present := md.radios[id]
	return present && rd.txEnd > md.sched.Now()
}

// Transmit puts frame on the medium for dur.  Any reception in progress at the
// sender is abandoned
func (md *Medium) Transmit(from *Station, frame *packet.Packet, dur sim.Time) {
	now := md.sched.Now()
	src, present := md.radios[from.ID]
	if !present {
		panic("transmission from a station not attached to the medium")
	}
	md.abortRx(src)
	src.txEnd = now + dur

	for _, nbrID := range md.hears(from.ID) {
		rd, present := md.radios[nbrID]
		if !present || rd.txEnd > now {
			continue
		}
		mgr := rd.station.Manager
		if mgr.IsOff() || mgr.IsSleeping() {
			continue
		}
		md.startRx(rd, frame.Copy(), from.ID, dur)
	}
}

// startRx begins the arrival of a frame lasting dur at rd
func (md *Medium) startRx(rd *radio, frame *packet.Packet, from int, dur sim.Time) {
	now := md.sched.Now()
	end := now + dur
	mgr := rd.station.Manager

	if rd.rx != nil {
		// the frame in progress is lost, and the medium stays busy until both have ended
		rd.rx.corrupt = true
		rd.energyEnd = max(rd.energyEnd, end)
		mgr.NotifyMaybeCcaBusyStartNow(rd.energyEnd - now)
		logger.Debug("collision",
			zap.String("station", rd.station.Name),
			zap.Int("from", from),
			zap.Int("with", rd.rx.from))
		return
	}

	rx := &reception{frame: frame, from: from, corrupt: rd.energyEnd > now}
	rd.energyEnd = max(rd.energyEnd, end)
	rd.rx = rx
	mgr.NotifyRxStartNow(dur)
	rx.end = md.sched.Schedule(dur, func() { md.endRx(rd, rx) })
}

// endRx completes the arrival of rx at rd, handing the frame up if it arrived intact
func (md *Medium) endRx(rd *radio, rx *reception) {
	if rd.rx != rx {
		return
	}
	rd.rx = nil
	st := rd.station
	lost := rx.corrupt
	if !lost && md.ErrorRate > 0 && md.rngstrm.RandU01() < md.ErrorRate {
		lost = true
	}
	if lost {
		st.Manager.NotifyRxEndErrorNow()
		st.rxError(rx.frame)
		return
	}
	st.Manager.NotifyRxEndOkNow()
	st.Low.Receive(rx.frame)
}

// abortRx drops the reception in progress at rd, if any
func (md *Medium) abortRx(rd *radio) {
	if rd.rx == nil {
		return
	}
	md.sched.Cancel(rd.rx.end)
	rd.rx = nil
}
