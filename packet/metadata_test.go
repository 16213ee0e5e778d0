package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataHeadersAndTrailers(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	p.AddHeader(&sizedHeader{size: 2})
	assert.Equal(t, []string{"test::Header2 2", "test::Header3 3", "Payload 10"}, chunks(p))

	p.RemoveHeader(&sizedHeader{size: 2})
	p.AddTrailer(&sizedTrailer{size: 4})
	assert.Equal(t, []string{"test::Header3 3", "Payload 10", "test::Trailer4 4"}, chunks(p))

	p.RemoveAtStart(5)
	assert.Equal(t, []string{"Payload 8 frag", "test::Trailer4 4"}, chunks(p))
	p.RemoveAtEnd(6)
	assert.Equal(t, []string{"Payload 6 frag"}, chunks(p))
}

func TestMetadataCopiesAreIndependent(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	cp := p.Copy()
	cp.AddHeader(&sizedHeader{size: 5})
	p.AddHeader(&sizedHeader{size: 7})
	assert.Equal(t, []string{"test::Header7 7", "test::Header3 3", "Payload 10"}, chunks(p))
	assert.Equal(t, []string{"test::Header5 5", "test::Header3 3", "Payload 10"}, chunks(cp))

	cp.RemoveHeader(&sizedHeader{size: 5})
	cp.AddTrailer(&sizedTrailer{size: 2})
	assert.Equal(t, []string{"test::Header7 7", "test::Header3 3", "Payload 10"}, chunks(p))
	assert.Equal(t, []string{"test::Header3 3", "Payload 10", "test::Trailer2 2"}, chunks(cp))
}

func TestMetadataReassembly(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(1000)
	f1 := p.CreateFragment(0, 500)
	f2 := p.CreateFragment(500, 500)
	assert.Equal(t, []string{"Payload 500 frag"}, chunks(f1))
	assert.Equal(t, []string{"Payload 500 frag"}, chunks(f2))

	f1.AddAtEnd(f2)
	assert.Equal(t, []string{"Payload 1000"}, chunks(f1))

	// unrelated payloads are not merged
	q := NewPacketSize(20)
	q.AddAtEnd(NewPacketSize(30))
	assert.Equal(t, []string{"Payload 20", "Payload 30"}, chunks(q))
}

func TestMetadataCopyEmptiedThenRefilled(t *testing.T) {
	withMetadata(t, false)
	p := NewPacket()
	p.AddHeader(&sizedHeader{size: 3})
	cp := p.Copy()
	cp.RemoveHeader(&sizedHeader{size: 3})
	assert.Empty(t, chunks(cp))

	cp.AddHeader(&sizedHeader{size: 5})
	assert.Equal(t, []string{"test::Header3 3"}, chunks(p))
	assert.Equal(t, uint32(3), p.Size())
	assert.Equal(t, []string{"test::Header5 5"}, chunks(cp))

	// the same from the trailer end
	q := NewPacket()
	q.AddTrailer(&sizedTrailer{size: 4})
	qc := q.Copy()
	qc.RemoveTrailer(&sizedTrailer{size: 4})
	qc.AddTrailer(&sizedTrailer{size: 2})
	assert.Equal(t, []string{"test::Trailer4 4"}, chunks(q))
	assert.Equal(t, []string{"test::Trailer2 2"}, chunks(qc))
}

func TestMetadataReassemblyKeepsHeaders(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(100)
	f1 := p.CreateFragment(0, 50)
	f2 := p.CreateFragment(50, 50)
	f1.AddHeader(&sizedHeader{size: 4})
	f1.AddAtEnd(f2)
	f1.AddTrailer(&sizedTrailer{size: 2})
	assert.Equal(t, uint32(106), f1.Size())
	assert.Equal(t, []string{"test::Header4 4", "Payload 100", "test::Trailer2 2"}, chunks(f1))
	assert.Equal(t, []string{"Payload 100"}, chunks(p))
}

func TestMetadataItemIterator(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 4})
	p.AddTrailer(&sizedTrailer{size: 6})
	it := p.Metadata()

	require.True(t, it.HasNext())
	hdr := it.Next()
	assert.Equal(t, KindHeader, hdr.Kind)
	h := sizedHeader{size: 4}
	h.Deserialize(hdr.Current)
	assert.False(t, h.bad)

	payload := it.Next()
	assert.Equal(t, KindPayload, payload.Kind)
	assert.Equal(t, uint32(10), payload.CurrentSize)

	tr := it.Next()
	assert.Equal(t, KindTrailer, tr.Kind)
	trailer := sizedTrailer{size: 6}
	trailer.Deserialize(tr.Current)
	assert.False(t, trailer.bad)
	assert.False(t, it.HasNext())

	p.RemoveAtEnd(8)
	it = p.Metadata()
	it.Next()
	payload = it.Next()
	assert.True(t, payload.IsFragment)
	assert.Equal(t, uint32(8), payload.CurrentSize)
	assert.Equal(t, uint32(0), payload.TrimmedFromStart)
	assert.Equal(t, uint32(2), payload.TrimmedFromEnd)
	assert.False(t, it.HasNext())
}

func TestMetadataChecking(t *testing.T) {
	withMetadata(t, true)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	assert.Panics(t, func() { p.RemoveHeader(&sizedHeader{size: 2}) })

	q := NewPacketSize(10)
	q.AddTrailer(&sizedTrailer{size: 3})
	assert.Panics(t, func() { q.RemoveTrailer(&sizedTrailer{size: 2}) })
}

func TestMetadataMismatchIgnoredWithoutChecking(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	assert.NotPanics(t, func() { p.RemoveHeader(&sizedHeader{size: 2}) })
	assert.Equal(t, []string{"test::Header3 3", "Payload 10"}, chunks(p))
}

func TestMetadataEnabledTooLate(t *testing.T) {
	ResetMetadata()
	t.Cleanup(ResetMetadata)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	assert.False(t, MetadataEnabled())
	assert.Panics(t, EnableMetadata)
}

func TestMetadataSerialize(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	p.AddTrailer(&sizedTrailer{size: 4})
	p.RemoveAtStart(1)

	m := p.metadata
	wire := make([]byte, m.SerializedSize())
	require.True(t, m.Serialize(wire))
	assert.False(t, m.Serialize(wire[:len(wire)-1]))

	out := NewPacketMetadata(0, 0)
	require.True(t, out.Deserialize(wire))
	assert.Equal(t, m.String(), out.String())
	assert.Equal(t, p.UID(), out.UID())
	assert.Equal(t, uint32(16), out.TotalSize())

	assert.False(t, NewPacketMetadata(0, 0).Deserialize(wire[:11]))
	assert.False(t, NewPacketMetadata(0, 0).Deserialize(wire[:len(wire)-1]))
}

func TestPrint(t *testing.T) {
	withMetadata(t, false)
	p := NewPacketSize(10)
	p.AddHeader(&sizedHeader{size: 3})
	p.AddTrailer(&sizedTrailer{size: 2})
	assert.Equal(t, "test::Header3 (size=3) Payload (size=10) test::Trailer2 (size=2)", p.String())

	p.RemoveAtStart(1)
	assert.Equal(t, "test::Header3 Fragment [1:3] Payload (size=10) test::Trailer2 (size=2)", p.String())
}
