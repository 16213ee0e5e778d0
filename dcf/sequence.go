package dcf

// SequenceCounter hands out 802.11 sequence numbers, counting separately for
// each destination and, for QoS data, each traffic identifier
type SequenceCounter struct {
	next map[seqKey]uint16
}

type seqKey struct {
	addr Mac48
	tid  uint8
	qos  bool
}

// CreateSequenceCounter is a constructor
func CreateSequenceCounter() *SequenceCounter {
	sc := new(SequenceCounter)
	sc.next = make(map[seqKey]uint16)
	return sc
}

// NextFor returns the sequence number to send hdr with.  Numbers wrap at 4096
func (sc *SequenceCounter) NextFor(hdr *MacHeader) uint16 {
	key := seqKey{addr: hdr.Addr1}
	if hdr.Type == FrameQosData && !hdr.Addr1.IsGroup() {
		key.tid = hdr.QosTid
		key.qos = true
	}
	seq := sc.next[key]
	sc.next[key] = (seq + 1) % 4096
	return seq
}
