package dcf

// mac_header.go holds the 802.11 MAC header for the frames this package
// sends (data, QoS data, RTS, CTS and ACK) and the FCS trailer.  Fields are
// little-endian on the wire.

import (
	"fmt"
	"hash/crc32"

	"github.com/iti/pktdcf/packet"
)

// Mac48 is a 48 bit IEEE MAC address
type Mac48 [6]byte

// Broadcast is the all-stations address
var Broadcast = Mac48{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Mac48FromID builds a locally administered unicast address from a station number
func Mac48FromID(id uint32) Mac48 {
	return Mac48{0x02, 0x00, byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

// IsGroup reports whether the address names a group of stations
func (a Mac48) IsGroup() bool {
	return a[0]&0x01 != 0
}

// IsBroadcast reports whether the address is the broadcast address
func (a Mac48) IsBroadcast() bool {
	return a == Broadcast
}

func (a Mac48) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// FrameType is the combination of the type and subtype fields of frame control
type FrameType uint8

const (
	FrameData FrameType = iota
	FrameQosData
	FrameRts
	FrameCts
	FrameAck
)

var frameTypeNames = map[FrameType]string{
	FrameData:    "DATA",
	FrameQosData: "QOSDATA",
	FrameRts:     "RTS",
	FrameCts:     "CTS",
	FrameAck:     "ACK",
}

func (ft FrameType) String() string {
	if name, present := frameTypeNames[ft]; present {
		return name
	}
	return fmt.Sprintf("FrameType(%d)", uint8(ft))
}

// type and subtype values of frame control
const (
	typeCtl  = 1
	typeData = 2

	subtypeData    = 0
	subtypeQosData = 8
	subtypeRts     = 11
	subtypeCts     = 12
	subtypeAck     = 13
)

// MacHeaderTypeID identifies MacHeader in packet metadata
var MacHeaderTypeID = packet.RegisterTypeID("dcf::MacHeader", packet.KindHeader)

// FcsTrailerTypeID identifies FcsTrailer in packet metadata
var FcsTrailerTypeID = packet.RegisterTypeID("dcf::FcsTrailer", packet.KindTrailer)

func init() {
	MacHeaderTypeID.SetFactory(func() any { return new(MacHeader) })
	FcsTrailerTypeID.SetFactory(func() any { return new(FcsTrailer) })
}

// MacHeader is an 802.11 MAC header
type MacHeader struct {
	Type     FrameType
	ToDs     bool
	FromDs   bool
	MoreFrag bool
	Retry    bool
	Duration uint16 // microseconds
	Addr1    Mac48
	Addr2    Mac48
	Addr3    Mac48
	Sequence uint16 // 12 bits
	Fragment uint8  // 4 bits
	QosTid   uint8
	QosNoAck bool
}

// TypeID identifies the header type
func (hdr *MacHeader) TypeID() packet.TypeID {
	return MacHeaderTypeID
}

// IsData reports whether the frame carries data
func (hdr *MacHeader) IsData() bool {
	return hdr.Type == FrameData || hdr.Type == FrameQosData
}

// IsCtl reports whether the frame is a control frame
func (hdr *MacHeader) IsCtl() bool {
	return hdr.Type == FrameRts || hdr.Type == FrameCts || hdr.Type == FrameAck
}

// SetSequenceNumber sets the 12 bit sequence number
func (hdr *MacHeader) SetSequenceNumber(seq uint16) {
	hdr.Sequence = seq & 0x0fff
}

// SequenceControl returns the sequence control field
func (hdr *MacHeader) SequenceControl() uint16 {
	return hdr.Sequence<<4 | uint16(hdr.Fragment&0x0f)
}

func (hdr *MacHeader) setSequenceControl(sc uint16) {
	hdr.Fragment = uint8(sc & 0x0f)
	hdr.Sequence = (sc >> 4) & 0x0fff
}

// FrameControl returns the frame control field
func (hdr *MacHeader) FrameControl() uint16 {
	var ftype, subtype uint16
	switch hdr.Type {
	case FrameData:
		ftype, subtype = typeData, subtypeData
	case FrameQosData:
		ftype, subtype = typeData, subtypeQosData
	case FrameRts:
		ftype, subtype = typeCtl, subtypeRts
	case FrameCts:
		ftype, subtype = typeCtl, subtypeCts
	case FrameAck:
		ftype, subtype = typeCtl, subtypeAck
	}
	val := ftype << 2
	val |= subtype << 4
	val |= boolBit(hdr.ToDs) << 8
	val |= boolBit(hdr.FromDs) << 9
	val |= boolBit(hdr.MoreFrag) << 10
	val |= boolBit(hdr.Retry) << 11
	return val
}

// setFrameControl decodes frame control, reporting whether the type is one this package handles
func (hdr *MacHeader) setFrameControl(fc uint16) bool {
	ftype := (fc >> 2) & 0x03
	subtype := (fc >> 4) & 0x0f
	switch {
	case ftype == typeData && subtype == subtypeData:
		hdr.Type = FrameData
	case ftype == typeData && subtype == subtypeQosData:
		hdr.Type = FrameQosData
	case ftype == typeCtl && subtype == subtypeRts:
		hdr.Type = FrameRts
	case ftype == typeCtl && subtype == subtypeCts:
		hdr.Type = FrameCts
	case ftype == typeCtl && subtype == subtypeAck:
		hdr.Type = FrameAck
	default:
		return false
	}
	hdr.ToDs = fc&(1<<8) != 0
	hdr.FromDs = fc&(1<<9) != 0
	hdr.MoreFrag = fc&(1<<10) != 0
	hdr.Retry = fc&(1<<11) != 0
	return true
}

func boolBit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// SerializedSize depends on the frame type
func (hdr *MacHeader) SerializedSize() uint32 {
	switch hdr.Type {
	case FrameData:
		return 2 + 2 + 6 + 6 + 6 + 2
	case FrameQosData:
		return 2 + 2 + 6 + 6 + 6 + 2 + 2
	case FrameRts:
		return 2 + 2 + 6 + 6
	default:
		return 2 + 2 + 6
	}
}

// Serialize writes the header at start
func (hdr *MacHeader) Serialize(start packet.Iterator) {
	i := start
	i.WriteHtolsbU16(hdr.FrameControl())
	i.WriteHtolsbU16(hdr.Duration)
	i.Write(hdr.Addr1[:])
	switch hdr.Type {
	case FrameRts:
		i.Write(hdr.Addr2[:])
	case FrameData, FrameQosData:
		i.Write(hdr.Addr2[:])
		i.Write(hdr.Addr3[:])
		i.WriteHtolsbU16(hdr.SequenceControl())
		if hdr.Type == FrameQosData {
			qos := uint16(hdr.QosTid & 0x0f)
			if hdr.QosNoAck {
				qos |= 1 << 5
			}
			i.WriteHtolsbU16(qos)
		}
	}
}

// Deserialize reads the header at start and returns its size.  A frame type
// this package does not handle is a malformed packet
func (hdr *MacHeader) Deserialize(start packet.Iterator) uint32 {
	i := start
	if !hdr.setFrameControl(i.ReadLsbtohU16()) {
		panic("deserializing an 802.11 frame of unsupported type")
	}
	hdr.Duration = i.ReadLsbtohU16()
	i.Read(hdr.Addr1[:])
	switch hdr.Type {
	case FrameRts:
		i.Read(hdr.Addr2[:])
	case FrameData, FrameQosData:
		i.Read(hdr.Addr2[:])
		i.Read(hdr.Addr3[:])
		hdr.setSequenceControl(i.ReadLsbtohU16())
		if hdr.Type == FrameQosData {
			qos := i.ReadLsbtohU16()
			hdr.QosTid = uint8(qos & 0x0f)
			hdr.QosNoAck = (qos>>5)&0x03 == 1
		}
	}
	return i.DistanceFrom(start)
}

func (hdr *MacHeader) String() string {
	switch hdr.Type {
	case FrameRts:
		return fmt.Sprintf("%s Duration/ID=%dus, RA=%s, TA=%s", hdr.Type, hdr.Duration, hdr.Addr1, hdr.Addr2)
	case FrameCts, FrameAck:
		return fmt.Sprintf("%s Duration/ID=%dus, RA=%s", hdr.Type, hdr.Duration, hdr.Addr1)
	}
	return fmt.Sprintf("%s ToDS=%d, FromDS=%d, MoreFrag=%d, Retry=%d, Duration/ID=%dus, DA=%s, SA=%s, BSSID=%s, FragNumber=%d, SeqNumber=%d",
		hdr.Type, boolBit(hdr.ToDs), boolBit(hdr.FromDs), boolBit(hdr.MoreFrag), boolBit(hdr.Retry),
		hdr.Duration, hdr.Addr1, hdr.Addr2, hdr.Addr3, hdr.Fragment, hdr.Sequence)
}

// FcsTrailer is the frame check sequence ending every 802.11 frame.  It is a
// CRC-32 of the bytes before it
type FcsTrailer struct {
	Fcs uint32
}

// TypeID identifies the trailer type
func (fcs *FcsTrailer) TypeID() packet.TypeID {
	return FcsTrailerTypeID
}

// SerializedSize is always four
func (fcs *FcsTrailer) SerializedSize() uint32 {
	return 4
}

// Serialize writes the FCS before end
func (fcs *FcsTrailer) Serialize(end packet.Iterator) {
	i := end
	i.Prev(4)
	i.WriteHtolsbU32(fcs.Fcs)
}

// Deserialize reads the FCS before end
func (fcs *FcsTrailer) Deserialize(end packet.Iterator) uint32 {
	i := end
	i.Prev(4)
	fcs.Fcs = i.ReadLsbtohU32()
	return 4
}

func (fcs *FcsTrailer) String() string {
	return fmt.Sprintf("FCS=0x%08x", fcs.Fcs)
}

// ComputeFcs returns the CRC-32 of the packet's bytes
func ComputeFcs(p *packet.Packet) uint32 {
	return crc32.ChecksumIEEE(p.PeekData())
}

// AddFcs appends an FCS trailer covering the packet's current bytes
func AddFcs(p *packet.Packet) {
	fcs := FcsTrailer{Fcs: ComputeFcs(p)}
	p.AddTrailer(&fcs)
}

// CheckFcs removes the FCS trailer and reports whether it matched the bytes before it
func CheckFcs(p *packet.Packet) bool {
	var fcs FcsTrailer
	p.RemoveTrailer(&fcs)
	return fcs.Fcs == ComputeFcs(p)
}
