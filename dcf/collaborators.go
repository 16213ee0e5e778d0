package dcf

// collaborators.go declares what a Txop needs from the layers around it: the
// low MAC that puts frames on the air, and the station manager that makes
// per-destination policy decisions.

import (
	"github.com/iti/pktdcf/packet"
)

// TransmissionParams tells the low MAC how to conduct one frame exchange
type TransmissionParams struct {
	Rts bool // protect the frame with RTS/CTS
	Ack bool // wait for an ACK

	// NextSize is the size of the fragment to follow this one, 0 if none does
	NextSize uint32
}

// HasNextData reports whether another fragment follows in the same exchange
func (tp TransmissionParams) HasNextData() bool {
	return tp.NextSize > 0
}

// TransmissionListener hears how an exchange the low MAC conducted ended
type TransmissionListener interface {
	GotCts()
	MissedCts()
	GotAck()
	MissedAck()
	StartNext()
	Cancel()
	EndTxNoAck()
}

// MacLow puts frames on the air
type MacLow interface {
	StartTransmission(p *packet.Packet, hdr *MacHeader, params TransmissionParams, listener TransmissionListener)
}

// StationManager holds per-destination transmission policy
type StationManager interface {
	NeedRts(hdr *MacHeader, p *packet.Packet) bool
	NeedRtsRetransmission(hdr *MacHeader, p *packet.Packet) bool
	NeedDataRetransmission(hdr *MacHeader, p *packet.Packet) bool
	NeedFragmentation(hdr *MacHeader, p *packet.Packet) bool
	FragmentSize(hdr *MacHeader, p *packet.Packet, fragment uint32) uint32
	FragmentOffset(hdr *MacHeader, p *packet.Packet, fragment uint32) uint32
	IsLastFragment(hdr *MacHeader, p *packet.Packet, fragment uint32) bool
	ReportFinalRtsFailed(hdr *MacHeader)
	ReportFinalDataFailed(hdr *MacHeader)
}
