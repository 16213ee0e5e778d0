package packet

// typeid.go holds the registry of header, trailer and tag types.  Metadata
// records and tag lists identify the type of what they carry by a small
// integer, and printing needs to get from that integer back to a name.

import (
	"fmt"
)

// TypeID identifies a registered header, trailer or tag type.  The zero
// TypeID stands for payload bytes and is never handed out
type TypeID uint32

// TypeKind says what role a registered type plays
type TypeKind int

const (
	KindPayload TypeKind = iota
	KindHeader
	KindTrailer
	KindTag
)

func (k TypeKind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindHeader:
		return "header"
	case KindTrailer:
		return "trailer"
	case KindTag:
		return "tag"
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

type typeEntry struct {
	name    string
	kind    TypeKind
	factory func() any
}

// typeRegistry is indexed by TypeID; entry 0 is the payload
var typeRegistry = []typeEntry{{name: "Payload", kind: KindPayload}}
var typeByName = map[string]TypeID{"Payload": 0}

// RegisterTypeID returns the identity of the named type, registering it on
// first use.  Registering a name a second time with a different kind panics
func RegisterTypeID(name string, kind TypeKind) TypeID {
	if kind == KindPayload {
		panic("the payload type is predefined")
	}
	if tid, present := typeByName[name]; present {
		if typeRegistry[tid].kind != kind {
			panic(fmt.Errorf("type %q already registered as a %s", name, typeRegistry[tid].kind))
		}
		return tid
	}
	tid := TypeID(len(typeRegistry))
	typeRegistry = append(typeRegistry, typeEntry{name: name, kind: kind})
	typeByName[name] = tid
	return tid
}

// SetFactory registers a constructor of empty instances of the type, which
// lets packet printing decode and show chunks and tags of that type.  The
// factory must return a Header, Trailer or Tag according to the type's kind
func (tid TypeID) SetFactory(factory func() any) {
	if tid == 0 || int(tid) >= len(typeRegistry) {
		panic(fmt.Errorf("no registered type %d to attach a factory to", uint32(tid)))
	}
	typeRegistry[tid].factory = factory
}

func (tid TypeID) newInstance() any {
	if f := tid.entry().factory; f != nil {
		return f()
	}
	return nil
}

// LookupTypeID finds a type by name
func LookupTypeID(name string) (TypeID, bool) {
	tid, present := typeByName[name]
	return tid, present
}

func (tid TypeID) entry() typeEntry {
	if int(tid) >= len(typeRegistry) {
		panic(fmt.Errorf("unregistered type id %d", uint32(tid)))
	}
	return typeRegistry[tid]
}

// Name returns the registered name of the type
func (tid TypeID) Name() string {
	return tid.entry().name
}

// Kind returns the registered role of the type
func (tid TypeID) Kind() TypeKind {
	return tid.entry().kind
}

func (tid TypeID) String() string {
	if int(tid) >= len(typeRegistry) {
		return fmt.Sprintf("TypeID(%d)", uint32(tid))
	}
	return tid.Name()
}
