package dcf

import (
	"github.com/iti/rngstream"
)

// Random supplies the uniform draws a Txop uses to pick backoff slot counts
type Random interface {
	// Integer returns a value uniformly distributed over [lo, hi]
	Integer(lo, hi uint32) uint32
}

// RngRandom draws from an rngstream, one stream per txop so that adding a
// station does not perturb the draws of the others
type RngRandom struct {
	rng *rngstream.RngStream
}

// CreateRngRandom is a constructor.  The name seeds the stream
func CreateRngRandom(name string) *RngRandom {
	rr := new(RngRandom)
	rr.rng = rngstream.New(name)
	return rr
}

// Integer returns a value uniformly distributed over [lo, hi]
func (rr *RngRandom) Integer(lo, hi uint32) uint32 {
	if hi <= lo {
		return lo
	}
	span := uint64(hi-lo) + 1
	v := uint64(rr.rng.RandU01() * float64(span))
	if v >= span {
		v = span - 1
	}
	return lo + uint32(v)
}

// FixedRandom returns a fixed sequence of draws, clamped to the requested
// range, and then repeats the last one.  It makes backoff behaviour scriptable
type FixedRandom struct {
	Draws []uint32
	next  int
}

// Integer returns the next scripted draw
func (fr *FixedRandom) Integer(lo, hi uint32) uint32 {
	if len(fr.Draws) == 0 {
		return lo
	}
	v := fr.Draws[min(fr.next, len(fr.Draws)-1)]
	fr.next++
	return max(lo, min(v, hi))
}
