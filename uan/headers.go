// Package uan holds the headers of the underwater acoustic reservation
// channel (RC) MAC.  A gateway polls its nodes in frames: nodes send RTS
// headers asking for a slot, the gateway answers with a global CTS header
// followed by one CTS header per granted node, data goes out under RcData
// headers, and the gateway closes the frame with an RcAck naming the data
// frames it missed.
//
// Times are carried on the wire as whole milliseconds.
package uan

import (
	"fmt"
	"strings"

	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"golang.org/x/exp/slices"
)

// Address is an 8 bit UAN station address
type Address uint8

// BroadcastAddress reaches every station
const BroadcastAddress Address = 255

var (
	RcDataTypeID      = packet.RegisterTypeID("uan::HeaderRcData", packet.KindHeader)
	RcRtsTypeID       = packet.RegisterTypeID("uan::HeaderRcRts", packet.KindHeader)
	RcCtsGlobalTypeID = packet.RegisterTypeID("uan::HeaderRcCtsGlobal", packet.KindHeader)
	RcCtsTypeID       = packet.RegisterTypeID("uan::HeaderRcCts", packet.KindHeader)
	RcAckTypeID       = packet.RegisterTypeID("uan::HeaderRcAck", packet.KindHeader)
)

func init() {
	RcDataTypeID.SetFactory(func() any { return new(RcData) })
	RcRtsTypeID.SetFactory(func() any { return new(RcRts) })
	RcCtsGlobalTypeID.SetFactory(func() any { return new(RcCtsGlobal) })
	RcCtsTypeID.SetFactory(func() any { return new(RcCts) })
	RcAckTypeID.SetFactory(func() any { return new(RcAck) })
}

func toMs16(t sim.Time) uint16 {
	return uint16(t.Seconds()*1000.0 + 0.5)
}

func toMs32(t sim.Time) uint32 {
	return uint32(t.Seconds()*1000.0 + 0.5)
}

func fromMs(ms uint32) sim.Time {
	return sim.Time(ms) * sim.Millisecond
}

// RcData precedes each data frame a node sends
type RcData struct {
	FrameNo   uint8
	PropDelay sim.Time
}

func (h *RcData) TypeID() packet.TypeID  { return RcDataTypeID }
func (h *RcData) SerializedSize() uint32 { return 1 + 2 }

func (h *RcData) Serialize(start packet.Iterator) {
	start.WriteU8(h.FrameNo)
	start.WriteU16(toMs16(h.PropDelay))
}

func (h *RcData) Deserialize(start packet.Iterator) uint32 {
	i := start
	h.FrameNo = i.ReadU8()
	h.PropDelay = fromMs(uint32(i.ReadU16()))
	return i.DistanceFrom(start)
}

func (h *RcData) String() string {
	return fmt.Sprintf("Frame No=%d Prop Delay=%s", h.FrameNo, h.PropDelay)
}

// RcRts asks the gateway for time to send NoFrames frames totalling Length bytes
type RcRts struct {
	FrameNo   uint8
	RetryNo   uint8
	NoFrames  uint8
	Length    uint16
	TimeStamp sim.Time
}

func (h *RcRts) TypeID() packet.TypeID  { return RcRtsTypeID }
func (h *RcRts) SerializedSize() uint32 { return 1 + 1 + 1 + 2 + 4 }

func (h *RcRts) Serialize(start packet.Iterator) {
	start.WriteU8(h.NoFrames)
	start.WriteU16(h.Length)
	start.WriteU32(toMs32(h.TimeStamp))
	start.WriteU8(h.FrameNo)
	start.WriteU8(h.RetryNo)
}

func (h *RcRts) Deserialize(start packet.Iterator) uint32 {
	i := start
	h.NoFrames = i.ReadU8()
	h.Length = i.ReadU16()
	h.TimeStamp = fromMs(i.ReadU32())
	h.FrameNo = i.ReadU8()
	h.RetryNo = i.ReadU8()
	return i.DistanceFrom(start)
}

func (h *RcRts) String() string {
	return fmt.Sprintf("Frame #=%d Retry #=%d Num Frames=%d Length=%d Time Stamp=%s",
		h.FrameNo, h.RetryNo, h.NoFrames, h.Length, h.TimeStamp)
}

// RcCtsGlobal opens the gateway's answer to a round of RTS headers
type RcCtsGlobal struct {
	RateNum     uint16
	RetryRate   uint16
	WindowTime  sim.Time
	TxTimeStamp sim.Time
}

func (h *RcCtsGlobal) TypeID() packet.TypeID  { return RcCtsGlobalTypeID }
func (h *RcCtsGlobal) SerializedSize() uint32 { return 2 + 2 + 4 + 2 }

func (h *RcCtsGlobal) Serialize(start packet.Iterator) {
	start.WriteU16(h.RateNum)
	start.WriteU16(h.RetryRate)
	start.WriteU32(toMs32(h.TxTimeStamp))
	start.WriteU16(toMs16(h.WindowTime))
}

func (h *RcCtsGlobal) Deserialize(start packet.Iterator) uint32 {
	i := start
	h.RateNum = i.ReadU16()
	h.RetryRate = i.ReadU16()
	h.TxTimeStamp = fromMs(i.ReadU32())
	h.WindowTime = fromMs(uint32(i.ReadU16()))
	return i.DistanceFrom(start)
}

func (h *RcCtsGlobal) String() string {
	return fmt.Sprintf("CTS Global (Rate #=%d, Retry Rate=%d, TX Time=%s, Win Time=%s)",
		h.RateNum, h.RetryRate, h.TxTimeStamp, h.WindowTime)
}

// RcCts grants one node its slot, DelayToTx after the global CTS
type RcCts struct {
	FrameNo      uint8
	RtsTimeStamp sim.Time
	DelayToTx    sim.Time
	RetryNo      uint8
	Address      Address
}

func (h *RcCts) TypeID() packet.TypeID  { return RcCtsTypeID }
func (h *RcCts) SerializedSize() uint32 { return 1 + 4 + 2 + 1 + 1 }

func (h *RcCts) Serialize(start packet.Iterator) {
	start.WriteU8(uint8(h.Address))
	start.WriteU8(h.FrameNo)
	start.WriteU32(toMs32(h.RtsTimeStamp))
	start.WriteU16(toMs16(h.DelayToTx))
	start.WriteU8(h.RetryNo)
}

func (h *RcCts) Deserialize(start packet.Iterator) uint32 {
	i := start
	h.Address = Address(i.ReadU8())
	h.FrameNo = i.ReadU8()
	h.RtsTimeStamp = fromMs(i.ReadU32())
	h.DelayToTx = fromMs(uint32(i.ReadU16()))
	h.RetryNo = i.ReadU8()
	return i.DistanceFrom(start)
}

func (h *RcCts) String() string {
	return fmt.Sprintf("CTS (Addr=%d Frame #=%d Retry #=%d RTS Rx Timestamp=%s Delay until TX=%s)",
		h.Address, h.FrameNo, h.RetryNo, h.RtsTimeStamp, h.DelayToTx)
}

// RcAck closes a frame, naming the data frames the gateway did not receive.
// The NACKed frames form a set
type RcAck struct {
	FrameNo uint8
	nacks   map[uint8]struct{}
}

// AddNackedFrame adds frame to the NACKed set
func (h *RcAck) AddNackedFrame(frame uint8) {
	if h.nacks == nil {
		h.nacks = make(map[uint8]struct{})
	}
	h.nacks[frame] = struct{}{}
}

// NackedFrames returns the NACKed set in increasing order
func (h *RcAck) NackedFrames() []uint8 {
	frames := make([]uint8, 0, len(h.nacks))
	for f := range h.nacks {
		frames = append(frames, f)
	}
	slices.Sort(frames)
	return frames
}

// NoNacks returns the size of the NACKed set
func (h *RcAck) NoNacks() uint8 {
	return uint8(len(h.nacks))
}

func (h *RcAck) TypeID() packet.TypeID { return RcAckTypeID }

func (h *RcAck) SerializedSize() uint32 {
	return 1 + 1 + uint32(len(h.nacks))
}

func (h *RcAck) Serialize(start packet.Iterator) {
	start.WriteU8(h.FrameNo)
	start.WriteU8(h.NoNacks())
	for _, f := range h.NackedFrames() {
		start.WriteU8(f)
	}
}

func (h *RcAck) Deserialize(start packet.Iterator) uint32 {
	i := start
	h.FrameNo = i.ReadU8()
	n := i.ReadU8()
	h.nacks = nil
	for k := uint8(0); k < n; k++ {
		h.AddNackedFrame(i.ReadU8())
	}
	return i.DistanceFrom(start)
}

func (h *RcAck) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Frame=%d # nacks=%d Nacked Frames:", h.FrameNo, h.NoNacks())
	for _, f := range h.NackedFrames() {
		fmt.Fprintf(&sb, " %d", f)
	}
	return sb.String()
}
