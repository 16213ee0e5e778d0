package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventListOrdersByTimeThenFIFO(t *testing.T) {
	el := CreateEventList()
	var got []string
	el.Schedule(Microseconds(5), func() { got = append(got, "b") })
	el.Schedule(Microseconds(1), func() { got = append(got, "a") })
	el.Schedule(Microseconds(5), func() { got = append(got, "c") })
	el.Schedule(Microseconds(5), func() {
		got = append(got, "d")
		el.Schedule(0, func() { got = append(got, "e") })
	})
	el.Run()

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Equal(t, Microseconds(5), el.Now())
	assert.Zero(t, el.Pending())
}

func TestEventListCancel(t *testing.T) {
	el := CreateEventList()
	fired := 0
	id := el.Schedule(10, func() { fired++ })
	el.Schedule(20, func() { fired += 10 })
	require.True(t, el.IsPending(id))

	el.Cancel(id)
	el.Cancel(id)
	assert.False(t, el.IsPending(id))
	el.Run()
	assert.Equal(t, 10, fired)
}

func TestEventListRunUntil(t *testing.T) {
	el := CreateEventList()
	fired := []Time{}
	for _, at := range []Time{3, 7, 12} {
		el.ScheduleAt(at, func() { fired = append(fired, el.Now()) })
	}
	el.RunUntil(10)
	assert.Equal(t, []Time{3, 7}, fired)
	assert.Equal(t, Time(10), el.Now())
	assert.Equal(t, 1, el.Pending())

	el.Run()
	assert.Equal(t, []Time{3, 7, 12}, fired)
}

func TestEventListStop(t *testing.T) {
	el := CreateEventList()
	count := 0
	el.Schedule(1, func() { count++; el.Stop() })
	el.Schedule(2, func() { count++ })
	el.Run()
	assert.Equal(t, 1, count)
	el.Run()
	assert.Equal(t, 2, count)
}

func TestEventListRejectsPast(t *testing.T) {
	el := CreateEventList()
	el.Schedule(5, func() {})
	el.Run()
	assert.Panics(t, func() { el.ScheduleAt(4, func() {}) })
	assert.Panics(t, func() { el.Schedule(-1, func() {}) })
}

func TestTimeConversions(t *testing.T) {
	assert.Equal(t, Time(1500), Microseconds(1)+500)
	assert.Equal(t, 2*Millisecond, Seconds(0.002))
	assert.InDelta(t, 0.25, (250 * Millisecond).Seconds(), 1e-12)
	assert.Equal(t, int64(9), Time(9999).Microseconds())
	assert.Equal(t, "1.5µs", Time(1500).String())
	assert.Equal(t, Time(7), Max(3, 7, 5))
	assert.Equal(t, Time(-2), Max(-2))
	assert.Zero(t, Max())
}
