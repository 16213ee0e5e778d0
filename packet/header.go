package packet

// Header is a protocol header that can be pushed onto the front of a packet.
// Serialize writes exactly SerializedSize bytes; Deserialize reads them back and
// returns the number of bytes consumed
type Header interface {
	TypeID() TypeID
	SerializedSize() uint32
	Serialize(start Iterator)
	Deserialize(start Iterator) uint32
	String() string
}

// Trailer is the back-of-packet counterpart of Header.  The iterator passed
// to Serialize and Deserialize is at the end of the packet, so implementations
// step back SerializedSize bytes before reading or writing
type Trailer interface {
	TypeID() TypeID
	SerializedSize() uint32
	Serialize(end Iterator)
	Deserialize(end Iterator) uint32
	String() string
}

// Tag is a small typed record attached to a whole packet or to a range of its bytes
type Tag interface {
	TypeID() TypeID
	SerializedSize() uint32
	Serialize(tb *TagBuffer)
	Deserialize(tb *TagBuffer)
	String() string
}
