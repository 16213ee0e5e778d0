package dcf

import (
	"testing"

	"github.com/iti/pktdcf/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMac48(t *testing.T) {
	addr := Mac48FromID(0x0102)
	assert.Equal(t, "02:00:00:00:01:02", addr.String())
	assert.False(t, addr.IsGroup())
	assert.True(t, Broadcast.IsGroup())
	assert.True(t, Broadcast.IsBroadcast())
}

func TestMacHeaderSizes(t *testing.T) {
	sizes := map[FrameType]uint32{
		FrameData:    24,
		FrameQosData: 26,
		FrameRts:     16,
		FrameCts:     10,
		FrameAck:     10,
	}
	for ft, size := range sizes {
		hdr := MacHeader{Type: ft}
		assert.Equal(t, size, hdr.SerializedSize(), ft.String())
	}
}

func TestMacHeaderRoundTrip(t *testing.T) {
	hdrs := []MacHeader{
		{Type: FrameData, ToDs: true, Retry: true, Duration: 44, Addr1: Mac48FromID(2),
			Addr2: Mac48FromID(1), Addr3: Mac48FromID(9), Sequence: 4095, Fragment: 3, MoreFrag: true},
		{Type: FrameQosData, Duration: 44, Addr1: Mac48FromID(2), Addr2: Mac48FromID(1),
			Addr3: Mac48FromID(1), Sequence: 17, QosTid: 6, QosNoAck: true},
		{Type: FrameRts, Duration: 300, Addr1: Mac48FromID(2), Addr2: Mac48FromID(1)},
		{Type: FrameCts, Duration: 250, Addr1: Mac48FromID(1)},
		{Type: FrameAck, Addr1: Mac48FromID(1)},
	}
	for _, hdr := range hdrs {
		p := packet.NewPacketSize(100)
		p.AddHeader(&hdr)
		assert.Equal(t, 100+hdr.SerializedSize(), p.Size())

		var got MacHeader
		got.Type = hdr.Type
		assert.Equal(t, hdr.SerializedSize(), p.RemoveHeader(&got))
		assert.Equal(t, hdr, got, hdr.Type.String())
		assert.Equal(t, uint32(100), p.Size())
	}
}

func TestMacHeaderFrameControl(t *testing.T) {
	hdr := MacHeader{Type: FrameAck}
	assert.Equal(t, uint16(0x00d4), hdr.FrameControl())
	hdr = MacHeader{Type: FrameData, Retry: true}
	assert.Equal(t, uint16(0x0808), hdr.FrameControl())
	hdr.SetSequenceNumber(0x1234)
	assert.Equal(t, uint16(0x0234), hdr.Sequence)
}

func TestFcs(t *testing.T) {
	p := packet.NewPacketFromBytes([]byte("the quick brown fox"))
	hdr := dataHeader(2)
	p.AddHeader(&hdr)
	AddFcs(p)
	require.Equal(t, 24+19+4, int(p.Size()))

	good := p.Copy()
	assert.True(t, CheckFcs(good))

	var fcs FcsTrailer
	p.PeekTrailer(&fcs)
	assert.Equal(t, ComputeFcs(good), fcs.Fcs)

	bad := p.Copy()
	bad.RemoveAtStart(1)
	assert.False(t, CheckFcs(bad))
}
