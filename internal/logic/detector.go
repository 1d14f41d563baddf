package logic

import "time"

// DefaultRestartWindow is how long all four channels must read as touched
// before the supervisor restarts the box.
const DefaultRestartWindow = 5 * time.Second

// RestartDetector watches for the all-channels-touched restart gesture.
type RestartDetector struct {
	window  time.Duration
	since   time.Time
	pending bool
}

// NewRestartDetector creates a detector with the given continuous window.
func NewRestartDetector(window time.Duration) *RestartDetector {
	return &RestartDetector{window: window}
}

// Process takes one sample of the four channels and reports whether the
// gesture has been held continuously for the whole window.
// Any channel reading at or above its threshold resets the window.
func (d *RestartDetector) Process(raw [NumChannels]int, thresholds [NumChannels]uint16, now time.Time) bool {
	all := true
	for i := range raw {
		if raw[i] >= int(thresholds[i]) {
			all = false
			break
		}
	}

	if !all {
		d.pending = false
		d.since = time.Time{}
		return false
	}

	if !d.pending {
		d.pending = true
		d.since = now
		return false
	}

	return now.Sub(d.since) > d.window
}

// Pending reports whether the gesture is currently being held.
func (d *RestartDetector) Pending() bool {
	return d.pending
}

// Heartbeat schedules periodic heartbeat events.
type Heartbeat struct {
	interval  time.Duration
	startTime time.Time
	last      time.Time
}

// NewHeartbeat creates a heartbeat timer. The startTime is used for uptime.
func NewHeartbeat(interval time.Duration, startTime time.Time) *Heartbeat {
	return &Heartbeat{
		interval:  interval,
		startTime: startTime,
		last:      startTime,
	}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time) *HeartbeatData {
	if h.interval <= 0 {
		return nil
	}
	if now.Sub(h.last) < h.interval {
		return nil
	}
	h.last = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
	}
}
