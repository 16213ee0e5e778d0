package packet

import (
	"fmt"
	"testing"
)

// sizedHeader occupies size bytes, each holding the low byte of size
type sizedHeader struct {
	size uint32
	bad  bool
}

var sizedTypes = map[string]TypeID{}

func sizedTypeID(prefix string, kind TypeKind, size uint32, factory func() any) TypeID {
	name := fmt.Sprintf("test::%s%d", prefix, size)
	if tid, present := sizedTypes[name]; present {
		return tid
	}
	tid := RegisterTypeID(name, kind)
	tid.SetFactory(factory)
	sizedTypes[name] = tid
	return tid
}

func (h *sizedHeader) TypeID() TypeID {
	size := h.size
	return sizedTypeID("Header", KindHeader, size, func() any { return &sizedHeader{size: size} })
}

func (h *sizedHeader) SerializedSize() uint32 { return h.size }

func (h *sizedHeader) Serialize(start Iterator) {
	start.WriteU8Repeat(uint8(h.size), h.size)
}

func (h *sizedHeader) Deserialize(start Iterator) uint32 {
	for i := uint32(0); i < h.size; i++ {
		if start.ReadU8() != uint8(h.size) {
			h.bad = true
		}
	}
	return h.size
}

func (h *sizedHeader) String() string { return fmt.Sprintf("size=%d", h.size) }

// sizedTrailer is the trailer counterpart of sizedHeader
type sizedTrailer struct {
	size uint32
	bad  bool
}

func (tr *sizedTrailer) TypeID() TypeID {
	size := tr.size
	return sizedTypeID("Trailer", KindTrailer, size, func() any { return &sizedTrailer{size: size} })
}

func (tr *sizedTrailer) SerializedSize() uint32 { return tr.size }

func (tr *sizedTrailer) Serialize(end Iterator) {
	end.Prev(tr.size)
	end.WriteU8Repeat(uint8(tr.size), tr.size)
}

func (tr *sizedTrailer) Deserialize(end Iterator) uint32 {
	end.Prev(tr.size)
	for i := uint32(0); i < tr.size; i++ {
		if end.ReadU8() != uint8(tr.size) {
			tr.bad = true
		}
	}
	return tr.size
}

func (tr *sizedTrailer) String() string { return fmt.Sprintf("size=%d", tr.size) }

// numberTag is a tag type per n, carrying a value
type numberTag struct {
	n     int
	value uint32
}

func (tag *numberTag) TypeID() TypeID {
	n := tag.n
	return sizedTypeID("Tag", KindTag, uint32(n), func() any { return &numberTag{n: n} })
}

func (tag *numberTag) SerializedSize() uint32 { return 4 }

func (tag *numberTag) Serialize(tb *TagBuffer) { tb.WriteU32(tag.value) }

func (tag *numberTag) Deserialize(tb *TagBuffer) { tag.value = tb.ReadU32() }

func (tag *numberTag) String() string { return fmt.Sprintf("value=%d", tag.value) }

// bulkyTag needs more room than a packet tag has
type bulkyTag struct{}

var bulkyTagID = RegisterTypeID("test::Bulky", KindTag)

func (bulkyTag) TypeID() TypeID            { return bulkyTagID }
func (bulkyTag) SerializedSize() uint32    { return PacketTagMaxSize + 1 }
func (bulkyTag) Serialize(tb *TagBuffer)   { tb.WriteZeros(PacketTagMaxSize + 1) }
func (bulkyTag) Deserialize(tb *TagBuffer) { tb.Skip(PacketTagMaxSize + 1) }
func (bulkyTag) String() string            { return "bulky" }

// byteTagSpan is a byte tag as seen through a packet: its tag number and range
type byteTagSpan struct {
	n          int
	start, end int32
}

func span(n int, start, end int32) byteTagSpan {
	return byteTagSpan{n: n, start: start, end: end}
}

func byteTagSpans(p *Packet) []byteTagSpan {
	var spans []byteTagSpan
	it := p.ByteTags()
	for it.HasNext() {
		item := it.Next()
		var n int
		fmt.Sscanf(item.TID.Name(), "test::Tag%d", &n)
		spans = append(spans, span(n, item.Start, item.End))
	}
	return spans
}

// chunks describes the metadata of p, one string per chunk
func chunks(p *Packet) []string {
	var out []string
	it := p.Metadata()
	for it.HasNext() {
		item := it.Next()
		s := fmt.Sprintf("%s %d", item.TID.Name(), item.CurrentSize)
		if item.IsFragment {
			s += " frag"
		}
		out = append(out, s)
	}
	return out
}

// withMetadata turns metadata recording on for the rest of the test
func withMetadata(t *testing.T, checking bool) {
	ResetMetadata()
	if checking {
		EnableMetadataChecking()
	} else {
		EnableMetadata()
	}
	t.Cleanup(ResetMetadata)
}
