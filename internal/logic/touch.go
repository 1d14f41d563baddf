package logic

import (
	"math"
	"time"
)

// FaultReading is the highest raw value treated as a sensor fault by the monitor.
const FaultReading = 5

// TouchTimer derives the touch tier of one channel from consecutive raw readings.
type TouchTimer struct {
	start   time.Time
	running bool
}

// Update feeds one raw reading and returns the new tier.
// A reading below threshold starts (or continues) the touch; anything at or
// above threshold clears it immediately. The tier saturates at MaxUint16.
func (t *TouchTimer) Update(raw int, threshold uint16, now time.Time) uint16 {
	if raw >= int(threshold) {
		t.running = false
		t.start = time.Time{}
		return 0
	}
	if !t.running {
		t.running = true
		t.start = now
	}
	held := now.Sub(t.start)
	if held < 0 {
		held = 0
	}
	secs := held / time.Second
	if secs >= math.MaxUint16 {
		return math.MaxUint16
	}
	return 1 + uint16(secs)
}

// Touching reports whether the timer is counting a touch.
func (t *TouchTimer) Touching() bool {
	return t.running
}

// Smooth applies the diagnostic moving average (0.8 previous, 0.2 new).
func Smooth(prev float64, raw int) float64 {
	return prev*0.8 + float64(raw)*0.2
}
