package pktdcf

// station.go holds Station, one node of an experiment: a channel access
// manager with a txop per queue, the low MAC that carries their frames over
// the medium, and the forwarding step that relays a packet along the route
// its nix vector records or delivers it when the route is used up.

import (
	"fmt"

	"github.com/iti/pktdcf/dcf"
	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"go.uber.org/zap"
)

// StationCounts tallies what happened at a station
type StationCounts struct {
	TxOk       int `json:"txok" yaml:"txok"`
	TxFailed   int `json:"txfailed" yaml:"txfailed"`
	QueueDrops int `json:"queuedrops" yaml:"queuedrops"`
	RxOk       int `json:"rxok" yaml:"rxok"`
	RxError    int `json:"rxerror" yaml:"rxerror"`
	Relayed    int `json:"relayed" yaml:"relayed"`
	Delivered  int `json:"delivered" yaml:"delivered"`
	NoRoute    int `json:"noroute" yaml:"noroute"`
}

// Station is a node on the medium
type Station struct {
	ID     int
	Name   string
	Groups []string
	Addr   dcf.Mac48

	Manager *dcf.Manager
	Low     *MacLowModel
	Policy  *dcf.ThresholdStationManager

	txMiddle *dcf.SequenceCounter
	txops    map[string]*dcf.Txop

	// queues in the order their txops were registered, highest priority first
	queues []string

	Counts StationCounts

	exp *Experiment
}

// CreateStation is a constructor.  The station is attached to the
// experiment's medium, with a txop for each queue sd describes
func CreateStation(id int, sd *StationDesc, exp *Experiment) *Station {
	st := new(Station)
	st.ID = id
	st.Name = sd.Name
	st.Groups = append([]string(nil), sd.Groups...)
	st.Addr = dcf.Mac48FromID(uint32(id))
	st.exp = exp

	cfg := exp.Cfg
	st.Manager = dcf.CreateManager(exp.sched)
	st.Manager.SetSlot(sim.Microseconds(cfg.SlotUs))
	st.Manager.SetSifs(sim.Microseconds(cfg.SifsUs))
	st.Manager.SetEifsNoDifs(sim.Microseconds(cfg.EifsNoDifsUs))

	st.Policy = dcf.CreateThresholdStationManager()
	st.Policy.RtsThreshold = sd.RtsThreshold
	st.Policy.FragThreshold = sd.FragThreshold
	st.Policy.MaxSsrc = sd.MaxSsrc
	st.Policy.MaxSlrc = sd.MaxSlrc

	st.txMiddle = dcf.CreateSequenceCounter()
	st.Low = CreateMacLowModel(st, exp.sched, exp.medium,
		sim.Microseconds(cfg.AckTimeoutUs), sim.Microseconds(cfg.CtsTimeoutUs))
	exp.medium.Attach(st)

	st.txops = make(map[string]*dcf.Txop)
	for _, qd := range sd.Queues {
		rng := dcf.CreateRngRandom(fmt.Sprintf("%s/%s", sd.Name, qd.Name))
		txop := dcf.CreateTxop(fmt.Sprintf("%s/%s", sd.Name, qd.Name), qd.QoS,
			st.Manager, st.Low, st.Policy, st.txMiddle, rng)
		txop.SetAifsn(qd.Aifsn)
		txop.SetMinCw(qd.CwMin)
		txop.SetMaxCw(qd.CwMax)
		txop.Queue().MaxLen = qd.MaxLen
		txop.Queue().SetDropCallback(st.queueDrop)
		txop.SetTxOkCallback(st.txOk)
		txop.SetTxFailedCallback(st.txFailed)
		txop.Initialize()
		st.txops[qd.Name] = txop
		st.queues = append(st.queues, qd.Name)
	}
	return st
}

// Txop returns the txop serving the named queue
func (st *Station) Txop(queue string) (*dcf.Txop, bool) {
	txop, present := st.txops[queue]
	return txop, present
}

// Originate routes p, a packet arising at the station, toward dst and
// queues it for the first hop
func (st *Station) Originate(p *packet.Packet, dst *Station, queue string) bool {
	nv, reachable := st.exp.routes.NixRoute(st.ID, dst.ID)
	if !reachable {
		st.Counts.NoRoute++
		logger.Info("no route",
			zap.String("station", st.Name),
			zap.String("dst", dst.Name))
		return false
	}
	p.SetNixVector(nv)
	next := st.exp.routes.NextHop(st.ID, nv)
	return st.Send(p, st.exp.stations[next].Addr, queue)
}

// Send queues p for transmission to the station at next, on the named queue.
// The return is false if the packet was dropped instead
func (st *Station) Send(p *packet.Packet, next dcf.Mac48, queue string) bool {
	txop, present := st.txops[queue]
	if !present {
		logger.Warn("send on unknown queue",
			zap.String("station", st.Name),
			zap.String("queue", queue))
		return false
	}
	hdr := dcf.MacHeader{Type: dcf.FrameData, Addr1: next, Addr2: st.Addr, Addr3: st.Addr}
	if txop.IsQoS() {
		hdr.Type = dcf.FrameQosData
	}
	q := txop.Queue()
	full := q.MaxLen > 0 && q.Len() >= q.MaxLen
	txop.Enqueue(p, hdr)
	return !full
}

// receive takes a complete data frame from the low MAC, and relays it or delivers it
func (st *Station) receive(p *packet.Packet, hdr *dcf.MacHeader) {
	nv := p.NixVector()
	if nv != nil && nv.RemainingBits() > 0 {
		next := st.exp.routes.NextHop(st.ID, nv)
		st.Counts.Relayed++
		st.exp.metrics.Relayed.WithLabelValues(st.Name).Inc()
		AddMacTrace(st.exp.trace, st.exp.sched.Now(), st.ID, "relay", p, hdr)
		st.Send(p, st.exp.stations[next].Addr, st.queues[0])
		return
	}

	st.Counts.Delivered++
	AddMacTrace(st.exp.trace, st.exp.sched.Now(), st.ID, "deliver", p, hdr)
	var tag FlowTag
	if !p.PeekPacketTag(&tag) {
		logger.Debug("delivered packet of no flow", zap.String("station", st.Name), zap.Uint64("uid", p.UID()))
		return
	}
	if int(tag.Dst) != st.ID {
		logger.Warn("packet delivered away from its destination",
			zap.String("station", st.Name),
			zap.Uint32("flow", tag.FlowID),
			zap.Uint32("dst", tag.Dst))
		return
	}
	st.exp.flowDelivered(&tag, p.Size())
}

func (st *Station) traceFrame(op string, frame *packet.Packet, hdr *dcf.MacHeader) {
	AddMacTrace(st.exp.trace, st.exp.sched.Now(), st.ID, op, frame, hdr)
}

func (st *Station) rxOk(frame *packet.Packet, hdr *dcf.MacHeader) {
	st.Counts.RxOk++
	st.exp.metrics.RxOk.WithLabelValues(st.Name).Inc()
	st.traceFrame("rx", frame, hdr)
}

func (st *Station) rxError(frame *packet.Packet) {
	st.Counts.RxError++
	st.exp.metrics.RxError.WithLabelValues(st.Name).Inc()
	st.traceFrame("rxerror", frame, nil)
}

func (st *Station) txOk(hdr dcf.MacHeader) {
	st.Counts.TxOk++
	st.exp.metrics.TxOk.WithLabelValues(st.Name).Inc()
}

func (st *Station) txFailed(hdr dcf.MacHeader) {
	st.Counts.TxFailed++
	st.exp.metrics.TxFailed.WithLabelValues(st.Name).Inc()
	logger.Debug("frame given up",
		zap.String("station", st.Name),
		zap.Stringer("to", hdr.Addr1),
		zap.Uint16("seq", hdr.Sequence))
}

func (st *Station) queueDrop(item dcf.QueueItem) {
	st.Counts.QueueDrops++
	st.exp.metrics.QueueDrops.WithLabelValues(st.Name).Inc()
	st.traceFrame("drop", item.Packet, &item.Header)
}
