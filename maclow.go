package pktdcf

// maclow.go holds MacLowModel, the low MAC of a station.  It conducts the
// frame exchanges a Txop starts (RTS/CTS, data, ACK) on the shared medium,
// arms the CTS and ACK timeouts, answers RTS and data frames addressed to
// its station, honors the NAV set by frames addressed elsewhere, and
// filters duplicates and reassembles fragments before handing data up.

import (
	"github.com/iti/pktdcf/dcf"
	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"go.uber.org/zap"
)

type waitKind int

const (
	waitNone waitKind = iota
	waitCts
	waitAck
)

// sizes of control frames on the air, FCS included
var (
	ctsSize = (&dcf.MacHeader{Type: dcf.FrameCts}).SerializedSize() + 4
	ackSize = (&dcf.MacHeader{Type: dcf.FrameAck}).SerializedSize() + 4
)

// reassembly collects the fragments of one frame from one transmitter
type reassembly struct {
	seq  uint16
	next uint8
	p    *packet.Packet
}

// MacLowModel implements dcf.MacLow over a Medium
type MacLowModel struct {
	station *Station
	sched   sim.Scheduler
	mgr     *dcf.Manager
	medium  *Medium

	sifs       sim.Time
	ackTimeout sim.Time
	ctsTimeout sim.Time

	listener   dcf.TransmissionListener
	current    *packet.Packet
	currentHdr dcf.MacHeader
	params     dcf.TransmissionParams
	waiting    waitKind
	timer      sim.EventID

	lastSeqCtl map[dcf.Mac48]uint16
	fragments  map[dcf.Mac48]*reassembly
}

// CreateMacLowModel is a constructor
func CreateMacLowModel(st *Station, sched sim.Scheduler, medium *Medium, ackTimeout, ctsTimeout sim.Time) *MacLowModel {
	low := new(MacLowModel)
	low.station = st
	low.sched = sched
	low.mgr = st.Manager
	low.medium = medium
	low.sifs = st.Manager.Sifs()
	low.ackTimeout = ackTimeout
	low.ctsTimeout = ctsTimeout
	low.timer = sim.NoEvent
	low.lastSeqCtl = make(map[dcf.Mac48]uint16)
	low.fragments = make(map[dcf.Mac48]*reassembly)
	return low
}

// usecs rounds a duration up to whole microseconds, as carried in the Duration/ID field
func usecs(t sim.Time) uint16 {
	if t <= 0 {
		return 0
	}
	us := (t + sim.Microsecond - 1) / sim.Microsecond
	return uint16(min(us, 0x7fff))
}

// remaining subtracts used from a Duration/ID value, stopping at zero
func remaining(duration uint16, used sim.Time) uint16 {
	return usecs(sim.Microseconds(int64(duration)) - used)
}

// frameDuration is the air time of p sent under hdr
func (low *MacLowModel) frameDuration(hdr *dcf.MacHeader, size uint32) sim.Time {
	return low.medium.TxDuration(size + hdr.SerializedSize() + 4)
}

// StartTransmission begins an exchange for p.  An exchange already waiting
// on a response is abandoned, and its listener told so
func (low *MacLowModel) StartTransmission(p *packet.Packet, hdr *dcf.MacHeader, params dcf.TransmissionParams,
	listener dcf.TransmissionListener) {
	if low.waiting != waitNone {
		low.sched.Cancel(low.timer)
		low.waiting = waitNone
		low.listener.Cancel()
	}
	low.current = p
	low.currentHdr = *hdr
	low.currentHdr.Addr2 = low.station.Addr
	low.params = params
	low.listener = listener

	if params.Rts {
		low.sendRts()
		return
	}
	low.sendData()
}

// dataNavDuration is the Duration/ID of the current data frame: what remains of the exchange after it
func (low *MacLowModel) dataNavDuration() sim.Time {
	if !low.params.Ack {
		return 0
	}
	ackDur := low.medium.TxDuration(ackSize)
	nav := low.sifs + ackDur
	if low.params.HasNextData() {
		nav += low.sifs + low.frameDuration(&low.currentHdr, low.params.NextSize) + low.sifs + ackDur
	}
	return nav
}

func (low *MacLowModel) sendRts() {
	rts := dcf.MacHeader{Type: dcf.FrameRts, Addr1: low.currentHdr.Addr1, Addr2: low.station.Addr}
	dataDur := low.frameDuration(&low.currentHdr, low.current.Size())
	rts.Duration = usecs(3*low.sifs + low.medium.TxDuration(ctsSize) + dataDur + low.medium.TxDuration(ackSize))

	frame := packet.NewPacket()
	frame.AddHeader(&rts)
	dcf.AddFcs(frame)
	dur := low.medium.TxDuration(frame.Size())
	low.transmit(frame, &rts, dur)

	timeout := dur + low.ctsTimeout
	low.mgr.NotifyCtsTimeoutStartNow(timeout)
	low.waiting = waitCts
	low.timer = low.sched.Schedule(timeout, low.ctsTimeoutFired)
}

func (low *MacLowModel) sendData() {
	hdr := low.currentHdr
	hdr.Duration = usecs(low.dataNavDuration())

	frame := low.current.Copy()
	frame.AddHeader(&hdr)
	dcf.AddFcs(frame)
	dur := low.medium.TxDuration(frame.Size())
	low.transmit(frame, &hdr, dur)

	if low.params.Ack {
		timeout := dur + low.ackTimeout
		low.mgr.NotifyAckTimeoutStartNow(timeout)
		low.waiting = waitAck
		low.timer = low.sched.Schedule(timeout, low.ackTimeoutFired)
		return
	}
	listener := low.listener
	low.sched.Schedule(dur, listener.EndTxNoAck)
}

func (low *MacLowModel) sendCts(rts dcf.MacHeader) {
	cts := dcf.MacHeader{Type: dcf.FrameCts, Addr1: rts.Addr2}
	ctsDur := low.medium.TxDuration(ctsSize)
	cts.Duration = remaining(rts.Duration, low.sifs+ctsDur)

	frame := packet.NewPacket()
	frame.AddHeader(&cts)
	dcf.AddFcs(frame)
	low.transmit(frame, &cts, ctsDur)
}

func (low *MacLowModel) sendAck(data dcf.MacHeader) {
	ack := dcf.MacHeader{Type: dcf.FrameAck, Addr1: data.Addr2}
	ackDur := low.medium.TxDuration(ackSize)
	if data.MoreFrag {
		ack.Duration = remaining(data.Duration, low.sifs+ackDur)
	}

	frame := packet.NewPacket()
	frame.AddHeader(&ack)
	dcf.AddFcs(frame)
	low.transmit(frame, &ack, ackDur)
}

// transmit puts a finished frame on the air
func (low *MacLowModel) transmit(frame *packet.Packet, hdr *dcf.MacHeader, dur sim.Time) {
	low.mgr.NotifyTxStartNow(dur)
	low.medium.Transmit(low.station, frame, dur)
	low.station.traceFrame("tx", frame, hdr)
}

func (low *MacLowModel) ctsTimeoutFired() {
	low.waiting = waitNone
	low.timer = sim.NoEvent
	low.station.traceFrame("ctstimeout", nil, &low.currentHdr)
	low.listener.MissedCts()
}

func (low *MacLowModel) ackTimeoutFired() {
	low.waiting = waitNone
	low.timer = sim.NoEvent
	low.station.traceFrame("acktimeout", nil, &low.currentHdr)
	low.listener.MissedAck()
}

// Receive takes a frame the medium delivered intact
func (low *MacLowModel) Receive(frame *packet.Packet) {
	if !dcf.CheckFcs(frame) {
		low.station.rxError(frame)
		return
	}
	var hdr dcf.MacHeader
	frame.RemoveHeader(&hdr)
	low.station.rxOk(frame, &hdr)

	if hdr.Addr1 != low.station.Addr && !hdr.Addr1.IsGroup() {
		low.mgr.NotifyNavStartNow(sim.Microseconds(int64(hdr.Duration)))
		return
	}

	switch hdr.Type {
	case dcf.FrameRts:
		low.sched.Schedule(low.sifs, func() { low.sendCts(hdr) })

	case dcf.FrameCts:
		if low.waiting != waitCts {
			logger.Debug("unexpected cts", zap.String("station", low.station.Name))
			return
		}
		low.sched.Cancel(low.timer)
		low.waiting = waitNone
		low.mgr.NotifyCtsTimeoutResetNow()
		low.listener.GotCts()
		low.sched.Schedule(low.sifs, low.sendData)

	case dcf.FrameAck:
		if low.waiting != waitAck {
			logger.Debug("unexpected ack", zap.String("station", low.station.Name))
			return
		}
		low.sched.Cancel(low.timer)
		low.waiting = waitNone
		low.mgr.NotifyAckTimeoutResetNow()
		listener, params := low.listener, low.params
		listener.GotAck()
		if params.HasNextData() {
			low.sched.Schedule(low.sifs, listener.StartNext)
		}

	case dcf.FrameData, dcf.FrameQosData:
		if !hdr.Addr1.IsGroup() && !(hdr.Type == dcf.FrameQosData && hdr.QosNoAck) {
			low.sched.Schedule(low.sifs, func() { low.sendAck(hdr) })
		}
		low.deliver(frame, &hdr)
	}
}

// deliver drops retransmissions already received and reassembles fragments,
// handing each complete frame to the station
func (low *MacLowModel) deliver(frame *packet.Packet, hdr *dcf.MacHeader) {
	from := hdr.Addr2
	seqCtl := hdr.SequenceControl()
	if last, present := low.lastSeqCtl[from]; present && hdr.Retry && last == seqCtl {
		logger.Debug("duplicate dropped",
			zap.String("station", low.station.Name),
			zap.Stringer("from", from),
			zap.Uint16("seq", hdr.Sequence))
		return
	}
	low.lastSeqCtl[from] = seqCtl

	if hdr.Fragment == 0 {
		delete(low.fragments, from)
		if !hdr.MoreFrag {
			low.station.receive(frame, hdr)
			return
		}
		low.fragments[from] = &reassembly{seq: hdr.Sequence, next: 1, p: frame}
		return
	}

	ra, present := low.fragments[from]
	if !present || ra.seq != hdr.Sequence || ra.next != hdr.Fragment {
		delete(low.fragments, from)
		logger.Debug("fragment out of order dropped",
			zap.String("station", low.station.Name),
			zap.Stringer("from", from),
			zap.Uint8("fragment", hdr.Fragment))
		return
	}
	ra.p.AddAtEnd(frame)
	ra.next++
	if hdr.MoreFrag {
		return
	}
	delete(low.fragments, from)
	low.station.receive(ra.p, hdr)
}
