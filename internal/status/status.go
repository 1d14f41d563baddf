// Package status holds the box's shared sensor state.
// The touch monitor writes it; the control loop, calibration, watchdog and
// the web/MQTT presentation read it. A single RWMutex guards the whole table,
// so readers never see a half-updated set of tiers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/uselessbox/internal/logic"
)

// NetworkInfo contains network state for display.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Store       string
}

// Snapshot is a point-in-time view of the box.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Touch       logic.Tiers
	Raw         [logic.NumChannels]int
	Filtered    [logic.NumChannels]float64
	Calibration [logic.NumChannels]logic.Entry
	Pushes      logic.PushCounts

	Mode     string
	Profile  string
	Watchdog bool

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable box state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Record stores one monitor tick for a channel: the raw reading, the
// smoothed diagnostic value and the derived touch tier.
func (t *Tracker) Record(ch logic.Channel, raw int, filtered float64, tier uint16) {
	if !ch.Valid() {
		return
	}
	t.mu.Lock()
	t.snap.Raw[ch] = raw
	t.snap.Filtered[ch] = filtered
	t.snap.Touch[ch] = tier
	t.mu.Unlock()
}

// SetTier sets the touch tier of one channel.
func (t *Tracker) SetTier(ch logic.Channel, tier uint16) {
	if !ch.Valid() {
		return
	}
	t.mu.Lock()
	t.snap.Touch[ch] = tier
	t.mu.Unlock()
}

// Tier returns the touch tier of one channel.
func (t *Tracker) Tier(ch logic.Channel) uint16 {
	if !ch.Valid() {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Touch[ch]
}

// Tiers returns the touch tiers of all channels from one consistent write.
func (t *Tracker) Tiers() logic.Tiers {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Touch
}

// SetReading stores a raw reading taken outside the monitor (calibration, watchdog).
func (t *Tracker) SetReading(ch logic.Channel, raw int) {
	if !ch.Valid() {
		return
	}
	t.mu.Lock()
	t.snap.Raw[ch] = raw
	t.mu.Unlock()
}

// SetCalibration sets the live calibration entries.
func (t *Tracker) SetCalibration(entries [logic.NumChannels]logic.Entry) {
	t.mu.Lock()
	t.snap.Calibration = entries
	t.mu.Unlock()
}

// Thresholds returns the live per-channel thresholds.
func (t *Tracker) Thresholds() [logic.NumChannels]uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var th [logic.NumChannels]uint16
	for i, e := range t.snap.Calibration {
		th[i] = e.Threshold
	}
	return th
}

// SetMode records the operating mode and profile selected at boot.
func (t *Tracker) SetMode(mode, profile string, watchdog bool) {
	t.mu.Lock()
	t.snap.Mode = mode
	t.snap.Profile = profile
	t.snap.Watchdog = watchdog
	t.mu.Unlock()
}

// CountPush increments the push counter of a channel.
func (t *Tracker) CountPush(ch logic.Channel) {
	if !ch.Valid() {
		return
	}
	t.mu.Lock()
	t.snap.Pushes[ch]++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the box state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
