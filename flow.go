package pktdcf

// flow.go holds Flow, a source of packets from one station to another, and
// the packet tag that lets the destination tell which flow a packet belongs
// to and how long it took to arrive.

import (
	"fmt"
	"math"

	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"github.com/iti/rngstream"
)

// flowModels lists the inter-arrival models a flow may follow
var flowModels = []string{"exp", "expon", "exponential", "const", "constant"}

// FlowTag travels with every packet a flow generates
type FlowTag struct {
	FlowID uint32
	Seq    uint32
	Dst    uint32
	SentAt sim.Time
}

// FlowTagTypeID identifies FlowTag among packet tags
var FlowTagTypeID = packet.RegisterTypeID("pktdcf::FlowTag", packet.KindTag)

func init() {
	FlowTagTypeID.SetFactory(func() any { return new(FlowTag) })
}

func (tag *FlowTag) TypeID() packet.TypeID  { return FlowTagTypeID }
func (tag *FlowTag) SerializedSize() uint32 { return 4 + 4 + 4 + 8 }

func (tag *FlowTag) Serialize(tb *packet.TagBuffer) {
	tb.WriteU32(tag.FlowID)
	tb.WriteU32(tag.Seq)
	tb.WriteU32(tag.Dst)
	tb.WriteU64(uint64(tag.SentAt))
}

func (tag *FlowTag) Deserialize(tb *packet.TagBuffer) {
	tag.FlowID = tb.ReadU32()
	tag.Seq = tb.ReadU32()
	tag.Dst = tb.ReadU32()
	tag.SentAt = sim.Time(tb.ReadU64())
}

func (tag *FlowTag) String() string {
	return fmt.Sprintf("flow=%d seq=%d dst=%d sent=%s", tag.FlowID, tag.Seq, tag.Dst, tag.SentAt)
}

// Flow generates packets of a fixed size at a station, addressed to another
type Flow struct {
	ID     int
	Name   string
	Groups []string
	Queue  string
	Rate   float64 // packets per second
	Size   uint32
	Model  string
	Start  sim.Time

	src   *Station
	dst   *Station
	sched sim.Scheduler

	// function that computes inter-arrival times.  First argument
	// is U01 random number, second argument is vector of parameters for distribution
	sampleNxtArrival func(float64, []float64) float64
	rngstrm          *rngstream.RngStream

	Suspended bool
	Sent      uint32
}

// CreateFlow is a constructor.  Poisson arrivals are the default
func CreateFlow(id int, fd *FlowDesc, src, dst *Station, sched sim.Scheduler) *Flow {
	bgf := new(Flow)
	bgf.ID = id
	bgf.Name = fd.Name
	bgf.Groups = append([]string(nil), fd.Groups...)
	bgf.Queue = fd.Queue
	bgf.Rate = fd.Rate
	bgf.Size = fd.Size
	bgf.Model = fd.Model
	bgf.Start = sim.Seconds(fd.Start)
	bgf.src = src
	bgf.dst = dst
	bgf.sched = sched
	bgf.rngstrm = rngstream.New(fmt.Sprintf("flow-%s", fd.Name))
	bgf.sampleNxtArrival = sampleExpRV
	bgf.adjustInterArrivalDist(fd.Model)
	return bgf
}

// set the distribution of the inter-arrivals
func (bgf *Flow) adjustInterArrivalDist(dist string) {
	switch dist {
	case "exponential", "exp", "expon":
		bgf.sampleNxtArrival = sampleExpRV
	case "constant", "const":
		bgf.sampleNxtArrival = sampleConst
	}
}

// StartFlow schedules the first arrival
func (bgf *Flow) StartFlow() {
	bgf.Suspended = false
	bgf.sched.Schedule(max(bgf.Start-bgf.sched.Now(), 0), bgf.arrival)
}

// StopFlow suspends the flow; arrivals already scheduled do nothing
func (bgf *Flow) StopFlow() {
	bgf.Suspended = true
}

// arrival hands a new packet to the source station and schedules the next arrival
func (bgf *Flow) arrival() {
	if bgf.Suspended {
		return
	}
	interarrival := bgf.sampleNxtArrival(bgf.rngstrm.RandU01(), []float64{bgf.Rate})
	bgf.sched.Schedule(max(sim.Seconds(interarrival), sim.Nanosecond), bgf.arrival)

	p := packet.NewPacketSize(bgf.Size)
	tag := FlowTag{FlowID: uint32(bgf.ID), Seq: bgf.Sent, Dst: uint32(bgf.dst.ID), SentAt: bgf.sched.Now()}
	p.AddPacketTag(&tag)
	bgf.Sent++
	bgf.src.Originate(p, bgf.dst, bgf.Queue)
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// sampleExpRV has the function signature expected by a Flow
// for calling a next interarrival time
func sampleExpRV(u01 float64, params []float64) float64 {
	return expRV(u01, params[0])
}

// sampleConst has the function signature expected by a Flow
// for calling a next interarrival time, here, a constant
func sampleConst(u01 float64, params []float64) float64 {
	return 1.0 / params[0]
}
