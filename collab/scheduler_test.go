package collab_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/canvasverse/collab"
)

func TestThrottle_FirstCallFiresImmediately(t *testing.T) {
	clock := newFakeClock()
	throttle := collab.NewThrottle(clock, 100*time.Millisecond)

	calls := 0
	throttle.Call(func() { calls++ })

	assert.Equal(t, 1, calls)
}

func TestThrottle_TrailingCallCarriesFreshestState(t *testing.T) {
	clock := newFakeClock()
	throttle := collab.NewThrottle(clock, 100*time.Millisecond)

	var got []string
	throttle.Call(func() { got = append(got, "first") })

	// Within the interval: both schedule, the later one replaces the
	// earlier, and only one trailing call fires.
	throttle.Call(func() { got = append(got, "second") })
	throttle.Call(func() { got = append(got, "third") })

	assert.Equal(t, []string{"first"}, got)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"first", "third"}, got)

	// Nothing further scheduled
	clock.Advance(time.Second)
	assert.Equal(t, []string{"first", "third"}, got)
}

func TestThrottle_FiresImmediatelyAfterIntervalElapsed(t *testing.T) {
	clock := newFakeClock()
	throttle := collab.NewThrottle(clock, 100*time.Millisecond)

	calls := 0
	throttle.Call(func() { calls++ })
	clock.Advance(150 * time.Millisecond)

	throttle.Call(func() { calls++ })
	assert.Equal(t, 2, calls)
}

func TestThrottle_StopCancelsPending(t *testing.T) {
	clock := newFakeClock()
	throttle := collab.NewThrottle(clock, 100*time.Millisecond)

	calls := 0
	throttle.Call(func() { calls++ })
	throttle.Call(func() { calls++ })
	throttle.Stop()

	clock.Advance(time.Second)
	assert.Equal(t, 1, calls)
}

func TestDebounce_OnlyFiresAfterQuietPeriod(t *testing.T) {
	clock := newFakeClock()
	debounce := collab.NewDebounce(clock, time.Second)

	calls := 0
	debounce.Call(func() { calls++ })

	// Keep resetting before the interval elapses
	clock.Advance(900 * time.Millisecond)
	debounce.Call(func() { calls++ })
	clock.Advance(900 * time.Millisecond)
	debounce.Call(func() { calls++ })

	assert.Equal(t, 0, calls)
	assert.True(t, debounce.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, 1, calls)
	assert.False(t, debounce.Pending())
}

func TestDebounce_FlushRunsPendingImmediately(t *testing.T) {
	clock := newFakeClock()
	debounce := collab.NewDebounce(clock, time.Second)

	calls := 0
	debounce.Call(func() { calls++ })
	debounce.Flush()

	assert.Equal(t, 1, calls)
	assert.False(t, debounce.Pending())

	// Flush with nothing pending is a no-op
	debounce.Flush()
	assert.Equal(t, 1, calls)

	// The stopped timer must not fire later
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, calls)
}

func TestDebounce_StopCancelsWithoutRunning(t *testing.T) {
	clock := newFakeClock()
	debounce := collab.NewDebounce(clock, time.Second)

	calls := 0
	debounce.Call(func() { calls++ })
	debounce.Stop()

	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, calls)
	assert.False(t, debounce.Pending())
}
