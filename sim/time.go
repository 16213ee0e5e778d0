package sim

// time.go holds the representation of simulation time used by the MAC layer.
// Times are integral nanoseconds so that slot arithmetic is exact; conversion
// to and from the vrtime representation used by the evtm event manager is provided
// for schedulers that run on it.

import (
	"math"
	"time"

	"github.com/iti/evt/vrtime"
)

// Time is an instant or a duration of simulation time, in nanoseconds
type Time int64

const (
	Nanosecond  Time = 1
	Microsecond      = 1000 * Nanosecond
	Millisecond      = 1000 * Microsecond
	Second           = 1000 * Millisecond

	// MaxTime is later than any time a simulation reaches
	MaxTime Time = math.MaxInt64
)

// Microseconds builds a Time from a count of microseconds
func Microseconds(n int64) Time {
	return Time(n) * Microsecond
}

// Seconds builds a Time from floating point seconds, rounded to the nearest nanosecond
func Seconds(s float64) Time {
	return Time(math.Round(s * float64(Second)))
}

// Seconds returns the time as floating point seconds
func (t Time) Seconds() float64 {
	return float64(t) / float64(Second)
}

// Microseconds returns the time as a (truncated) count of microseconds
func (t Time) Microseconds() int64 {
	return int64(t / Microsecond)
}

// VrTime converts to the evtm representation of time
func (t Time) VrTime() vrtime.Time {
	return vrtime.SecondsToTime(t.Seconds())
}

// FromVrTime converts from the evtm representation of time
func FromVrTime(vt vrtime.Time) Time {
	return Seconds(vt.Seconds())
}

func (t Time) String() string {
	return time.Duration(t).String()
}

// Max returns the latest of the given times, or 0 if none are given
func Max(times ...Time) Time {
	var m Time
	for idx, t := range times {
		if idx == 0 || t > m {
			m = t
		}
	}
	return m
}
