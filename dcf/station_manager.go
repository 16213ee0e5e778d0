package dcf

import (
	"github.com/iti/pktdcf/packet"
	"go.uber.org/zap"
)

// ThresholdStationManager is a StationManager with fixed policy: frames
// larger than RtsThreshold bytes are protected by RTS/CTS, those larger than
// FragThreshold bytes are fragmented, and a frame is given up on after
// MaxSsrc failed RTS attempts or MaxSlrc failed data attempts
type ThresholdStationManager struct {
	RtsThreshold  uint32
	FragThreshold uint32
	MaxSsrc       uint32
	MaxSlrc       uint32

	retries map[Mac48]*retryCount

	// FinalRtsFailed and FinalDataFailed count frames given up on
	FinalRtsFailed  int
	FinalDataFailed int
}

type retryCount struct {
	seq  uint16
	ssrc uint32
	slrc uint32
}

// CreateThresholdStationManager is a constructor, with the 802.11 default retry limits
// and thresholds high enough that neither RTS nor fragmentation is used
func CreateThresholdStationManager() *ThresholdStationManager {
	sm := new(ThresholdStationManager)
	sm.RtsThreshold = 65535
	sm.FragThreshold = 65535
	sm.MaxSsrc = 7
	sm.MaxSlrc = 7
	sm.retries = make(map[Mac48]*retryCount)
	return sm
}

// count returns the retry counts of the frame hdr describes, starting over when it is a new frame
func (sm *ThresholdStationManager) count(hdr *MacHeader) *retryCount {
	rc, present := sm.retries[hdr.Addr1]
	if !present || rc.seq != hdr.Sequence {
		rc = &retryCount{seq: hdr.Sequence}
		sm.retries[hdr.Addr1] = rc
	}
	return rc
}

// NeedRts reports whether the frame is large enough to protect
func (sm *ThresholdStationManager) NeedRts(hdr *MacHeader, p *packet.Packet) bool {
	if hdr.Addr1.IsGroup() {
		return false
	}
	return p.Size() > sm.RtsThreshold
}

// NeedRtsRetransmission counts a failed RTS and reports whether another may be tried
func (sm *ThresholdStationManager) NeedRtsRetransmission(hdr *MacHeader, p *packet.Packet) bool {
	rc := sm.count(hdr)
	rc.ssrc++
	return rc.ssrc < sm.MaxSsrc
}

// NeedDataRetransmission counts a failed data frame and reports whether another attempt may be made
func (sm *ThresholdStationManager) NeedDataRetransmission(hdr *MacHeader, p *packet.Packet) bool {
	rc := sm.count(hdr)
	rc.slrc++
	return rc.slrc < sm.MaxSlrc
}

// NeedFragmentation reports whether a unicast frame is larger than the fragmentation threshold
func (sm *ThresholdStationManager) NeedFragmentation(hdr *MacHeader, p *packet.Packet) bool {
	if hdr.Addr1.IsGroup() {
		return false
	}
	return p.Size() > sm.FragThreshold
}

// FragmentSize returns the size of the numbered fragment
func (sm *ThresholdStationManager) FragmentSize(hdr *MacHeader, p *packet.Packet, fragment uint32) uint32 {
	offset := sm.FragmentOffset(hdr, p, fragment)
	if offset >= p.Size() {
		return 0
	}
	return min(sm.FragThreshold, p.Size()-offset)
}

// FragmentOffset returns where in the packet the numbered fragment starts
func (sm *ThresholdStationManager) FragmentOffset(hdr *MacHeader, p *packet.Packet, fragment uint32) uint32 {
	return fragment * sm.FragThreshold
}

// IsLastFragment reports whether the numbered fragment ends the packet
func (sm *ThresholdStationManager) IsLastFragment(hdr *MacHeader, p *packet.Packet, fragment uint32) bool {
	return (fragment+1)*sm.FragThreshold >= p.Size()
}

// ReportFinalRtsFailed records that a frame was abandoned for want of a CTS
func (sm *ThresholdStationManager) ReportFinalRtsFailed(hdr *MacHeader) {
	sm.FinalRtsFailed++
	delete(sm.retries, hdr.Addr1)
	logger.Debug("rts retry limit reached", zap.Stringer("to", hdr.Addr1), zap.Uint16("seq", hdr.Sequence))
}

// ReportFinalDataFailed records that a frame was abandoned for want of an ACK
func (sm *ThresholdStationManager) ReportFinalDataFailed(hdr *MacHeader) {
	sm.FinalDataFailed++
	delete(sm.retries, hdr.Addr1)
	logger.Debug("data retry limit reached", zap.Stringer("to", hdr.Addr1), zap.Uint16("seq", hdr.Sequence))
}
