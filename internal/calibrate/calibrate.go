// Package calibrate derives per-channel touch thresholds from live samples.
//
// The procedure homes the box, samples every channel untouched, then lets the
// push arm rest on each channel's sensor to sample it touched. It reads the
// sensor directly and must not run alongside the control loop.
package calibrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/uselessbox/internal/box"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/servo"
	"github.com/sweeney/uselessbox/internal/status"
	"github.com/sweeney/uselessbox/internal/store"
	"github.com/sweeney/uselessbox/internal/touch"
)

// Sampling plan.
const (
	BaselineSamples  = 250
	BaselineInterval = 50 * time.Millisecond
	TouchedSamples   = 250
	TouchedInterval  = 5 * time.Millisecond
	// Settle is waited before baseline sampling and after placing the arm.
	Settle = 2 * time.Second
	// LidSettle is waited after closing the lid at the end.
	LidSettle = 1 * time.Second
)

// Result is the outcome of one calibration run.
type Result struct {
	RunID   string
	Entries store.Entries
	// SaveErr is set when the results could not be persisted. The live
	// calibration is updated regardless.
	SaveErr error
}

// Procedure runs calibration for one profile.
type Procedure struct {
	ctl     *box.Controller
	sensor  touch.Sensor
	store   store.Store
	profile store.Profile
	state   *status.Tracker
	log     *slog.Logger
	now     func() time.Time
	onEvent func(logic.Event)
	restart func(reason string)
	uiOpen  bool
}

// Option configures a Procedure.
type Option func(*Procedure)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Procedure) { p.log = log }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Procedure) { p.now = now }
}

// WithEvents registers a callback for the CALIBRATED event.
func WithEvents(fn func(logic.Event)) Option {
	return func(p *Procedure) { p.onEvent = fn }
}

// WithRestart sets what Run calls when it is done and no configuration UI
// is open.
func WithRestart(fn func(reason string)) Option {
	return func(p *Procedure) { p.restart = fn }
}

// WithUIOpen keeps the box idle after calibration instead of restarting.
func WithUIOpen(open bool) Option {
	return func(p *Procedure) { p.uiOpen = open }
}

// New creates a Procedure. Sleeps go through the controller's actuator.
func New(ctl *box.Controller, sensor touch.Sensor, st store.Store, profile store.Profile, state *status.Tracker, opts ...Option) *Procedure {
	p := &Procedure{
		ctl:     ctl,
		sensor:  sensor,
		store:   st,
		profile: profile,
		state:   state,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run calibrates, then restarts the box, or idles until ctx is cancelled
// when a configuration UI is open.
func (p *Procedure) Run(ctx context.Context) Result {
	res := p.Calibrate()
	if p.uiOpen || p.restart == nil {
		p.log.Info("calibration done, idling")
		<-ctx.Done()
		return res
	}
	p.restart("CALIBRATED")
	return res
}

// Calibrate runs the sampling sequence once and persists the result.
func (p *Procedure) Calibrate() Result {
	act := p.ctl.Actuator()
	res := Result{RunID: uuid.NewString()}
	log := p.log.With("run_id", res.RunID, "profile", string(p.profile))
	log.Info("calibration started")

	p.ctl.Home()
	p.ctl.OpenLidFully()
	p.state.SetCalibration(store.Defaults(p.profile))
	act.Sleep(Settle)

	var baselines [logic.NumChannels]logic.Baseline
	for i := 0; i < BaselineSamples; i++ {
		for c := logic.Channel(0); c < logic.NumChannels; c++ {
			raw, _ := p.read(c)
			baselines[c].Add(raw)
		}
		act.Sleep(BaselineInterval)
	}

	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		p.ctl.RotateTo(c)
		act.SetPush(servo.PushWaiting, false)
		act.Sleep(Settle)

		samples := make([]int, 0, TouchedSamples)
		for i := 0; i < TouchedSamples; i++ {
			if raw, ok := p.read(c); ok {
				samples = append(samples, raw)
			}
			act.Sleep(TouchedInterval)
		}
		act.SetPush(servo.PushMin, false)

		res.Entries[c] = logic.DeriveEntry(logic.Mean(samples), baselines[c].Mean())
		log.Debug("channel calibrated", "channel", int(c),
			"untouched_samples", baselines[c].Count(), "touched_samples", len(samples))
	}

	if err := p.store.Save(p.profile, res.Entries); err != nil {
		res.SaveErr = fmt.Errorf("save calibration: %w", err)
		log.Error("calibration not saved", "err", err)
	}
	p.state.SetCalibration(res.Entries)
	log.Info("calibration results\n" + FormatTable(res.Entries))

	if p.onEvent != nil {
		p.onEvent(logic.Event{
			Timestamp:   p.now(),
			Type:        logic.EventCalibrated,
			Calibration: append([]logic.Entry(nil), res.Entries[:]...),
			RunID:       res.RunID,
		})
	}

	p.ctl.CloseLid(true)
	act.Sleep(LidSettle)
	return res
}

// read takes one raw sample. A failed read returns 0, which the baseline
// treats as a fault reading.
func (p *Procedure) read(c logic.Channel) (int, bool) {
	raw, err := p.sensor.Read(c)
	if err != nil {
		p.log.Debug("calibration read failed", "channel", int(c), "err", err)
		return 0, false
	}
	p.state.SetReading(c, raw)
	return raw, true
}

// FormatTable renders entries as the calibration report.
func FormatTable(e store.Entries) string {
	var b strings.Builder
	b.WriteString("Pos | true | false | TH\n")
	for c, entry := range e {
		fmt.Fprintf(&b, "%-3d | %-4d | %-5d | %d\n", c, entry.Touched, entry.Untouched, entry.Threshold)
	}
	return b.String()
}
