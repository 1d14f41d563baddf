// Package touch samples the four capacitive channels and keeps the shared
// touch tiers current.
// The real sensor is an MPR121 on the Linux I2C character device.
// The fake sensor allows testing without hardware.
package touch

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/status"
)

// Sensor reads raw capacitance values. Touch lowers the reading.
type Sensor interface {
	Read(ch logic.Channel) (int, error)
	Close() error
}

// DefaultInterval is the monitor polling tick.
const DefaultInterval = 5 * time.Millisecond

// initialFiltered seeds the diagnostic moving average.
const initialFiltered = 100

// Monitor derives the touch tier of every channel from raw readings.
// It is the only writer of the tiers held by the tracker.
type Monitor struct {
	sensor   Sensor
	state    *status.Tracker
	log      *slog.Logger
	interval time.Duration

	timers   [logic.NumChannels]logic.TouchTimer
	filtered [logic.NumChannels]float64
}

// NewMonitor creates a Monitor. Thresholds are taken from the tracker's
// calibration on every tick.
func NewMonitor(sensor Sensor, state *status.Tracker, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	m := &Monitor{
		sensor:   sensor,
		state:    state,
		log:      log,
		interval: DefaultInterval,
	}
	for i := range m.filtered {
		m.filtered[i] = initialFiltered
	}
	return m
}

// SetInterval overrides the polling tick.
func (m *Monitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Tick samples every channel once.
func (m *Monitor) Tick(now time.Time) {
	thresholds := m.state.Thresholds()
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		raw, err := m.sensor.Read(c)
		if err != nil {
			m.log.Debug("touch read failed", "channel", int(c), "err", err)
			continue
		}
		if raw <= logic.FaultReading {
			continue
		}
		m.filtered[c] = logic.Smooth(m.filtered[c], raw)
		tier := m.timers[c].Update(raw, thresholds[c], now)
		m.state.Record(c, raw, m.filtered[c], tier)
	}
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("touch monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("touch monitor stopped")
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}
