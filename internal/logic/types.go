// Package logic contains the pure decision logic of the box.
// This package has NO hardware dependencies (no GPIO, PWM, I2C, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"strings"
	"time"
)

// NumChannels is the number of touch sensor / switch / arm position slots.
const NumChannels = 4

// Channel identifies one touch sensor, its switch and the matching arm position (0-3).
type Channel int

// Valid reports whether c names one of the box's channels.
func (c Channel) Valid() bool {
	return c >= 0 && c < NumChannels
}

// SwitchMap is a snapshot of which switches are mechanically pressed.
// Bit (3-i) is set when switch i is pressed, so channel 0 is the most
// significant of the four bits.
type SwitchMap uint8

// SwitchMapOf builds a SwitchMap from per-channel pressed states.
func SwitchMapOf(pressed [NumChannels]bool) SwitchMap {
	var m SwitchMap
	for i, p := range pressed {
		if p {
			m |= 1 << (NumChannels - 1 - i)
		}
	}
	return m
}

// Pressed reports whether the switch of channel c is pressed.
func (m SwitchMap) Pressed(c Channel) bool {
	if !c.Valid() {
		return false
	}
	return m&(1<<(NumChannels-1-int(c))) != 0
}

// Any reports whether at least one switch is pressed.
func (m SwitchMap) Any() bool {
	return m&0x0f != 0
}

// String renders the map channel 0 first, e.g. "1010".
func (m SwitchMap) String() string {
	var b strings.Builder
	for c := Channel(0); c < NumChannels; c++ {
		if m.Pressed(c) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Tiers holds the touch status of every channel.
// 0 = not touched, 1 = touched for less than a second,
// N = touched for about N-1 seconds.
type Tiers [NumChannels]uint16

// Touched reports whether channel c has a non-zero tier.
func (t Tiers) Touched(c Channel) bool {
	return c.Valid() && t[c] > 0
}

// Single returns the touched channel when exactly one channel is touched.
func (t Tiers) Single() (Channel, bool) {
	found := Channel(-1)
	for c := Channel(0); c < NumChannels; c++ {
		if t[c] == 0 {
			continue
		}
		if found >= 0 {
			return -1, false
		}
		found = c
	}
	return found, found >= 0
}

// Entry is the calibration of one channel.
type Entry struct {
	Touched   uint16 // average reading while touched ("min")
	Untouched uint16 // average reading while untouched ("max")
	Threshold uint16 // readings below this count as a touch
}

// EventType names something the box did that is worth reporting.
type EventType string

const (
	EventPush       EventType = "PUSH"
	EventHold       EventType = "HOLD"
	EventCalibrated EventType = "CALIBRATED"
)

// Event is reported by the control and calibration tasks.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Channel   Channel
	Switches  SwitchMap

	// Calibration and RunID are set for EventCalibrated only.
	Calibration []Entry
	RunID       string
}

// PushCounts tracks push sequences per channel since startup.
type PushCounts [NumChannels]int

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
