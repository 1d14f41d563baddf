// Package servo drives the three servo axes of the box within their safe ranges.
package servo

import (
	"log/slog"
	"time"
)

// Axis identifies one of the three servo-driven mechanisms.
type Axis int

const (
	AxisRotation Axis = iota
	AxisPush
	AxisLid
)

// NumAxes is the number of servo axes.
const NumAxes = 3

func (a Axis) String() string {
	switch a {
	case AxisRotation:
		return "rotation"
	case AxisPush:
		return "push"
	case AxisLid:
		return "lid"
	}
	return "unknown"
}

// Range is an inclusive pulse-width range in microseconds.
type Range struct {
	Min uint16
	Max uint16
}

// Contains reports whether us lies within the range.
func (r Range) Contains(us uint16) bool {
	return us >= r.Min && us <= r.Max
}

// Safe ranges and named positions (pulse widths in µs).
var (
	RotationRange = Range{Min: 750, Max: 2450}
	PushRange     = Range{Min: 1100, Max: 1750}
	LidRange      = Range{Min: 1060, Max: 2100}

	// SwitchPositions are the rotation pulses that put the arm over each switch.
	SwitchPositions = [4]uint16{850, 1300, 1850, 2400}
)

const (
	// PushPressed drives the arm past its resting travel to flip a switch.
	// Only accepted with overtravel.
	PushPressed uint16 = 1900
	PushWaiting uint16 = 1700
	PushMin     uint16 = 1100
	PushMax     uint16 = 1750

	LidClosed uint16 = 1060
	LidOpen   uint16 = 1600
	LidMax    uint16 = 2100
)

// DefaultSettle is how long a setter blocks after commanding a move.
const DefaultSettle = 100 * time.Millisecond

// Driver commands a pulse width on one axis's PWM output.
type Driver interface {
	SetPulse(axis Axis, us uint16) error
	Close() error
}

// Position is the last commanded pulse width per axis (0 = never commanded).
type Position struct {
	Rotation uint16
	Push     uint16
	Lid      uint16
}

// Actuator validates and applies pulse-width targets.
// Setters block for the settle delay after an accepted move. Calls on the same
// axis must be serialized by the caller.
type Actuator struct {
	drv    Driver
	settle time.Duration
	sleep  func(time.Duration)
	log    *slog.Logger

	pos Position
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithSettle overrides the settle delay.
func WithSettle(d time.Duration) Option {
	return func(a *Actuator) { a.settle = d }
}

// WithSleep replaces time.Sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(a *Actuator) { a.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Actuator) { a.log = log }
}

// NewActuator creates an Actuator on top of drv.
func NewActuator(drv Driver, opts ...Option) *Actuator {
	a := &Actuator{
		drv:    drv,
		settle: DefaultSettle,
		sleep:  time.Sleep,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SetRotation moves the rotating arm. Returns false if us is out of range.
func (a *Actuator) SetRotation(us uint16) bool {
	if !RotationRange.Contains(us) {
		a.reject(AxisRotation, us)
		return false
	}
	if !a.apply(AxisRotation, us) {
		return false
	}
	a.pos.Rotation = us
	return true
}

// SetPush moves the pushing arm. The upper bound extends to PushPressed
// when overtravel is set.
func (a *Actuator) SetPush(us uint16, overtravel bool) bool {
	limit := PushRange
	if overtravel {
		limit.Max = PushPressed
	}
	if !limit.Contains(us) {
		a.reject(AxisPush, us)
		return false
	}
	if !a.apply(AxisPush, us) {
		return false
	}
	a.pos.Push = us
	return true
}

// SetLid moves the lid. Returns false if us is out of range.
func (a *Actuator) SetLid(us uint16) bool {
	if !LidRange.Contains(us) {
		a.reject(AxisLid, us)
		return false
	}
	if !a.apply(AxisLid, us) {
		return false
	}
	a.pos.Lid = us
	return true
}

// Position returns the last commanded pulse widths.
func (a *Actuator) Position() Position {
	return a.pos
}

// Sleep blocks the calling task using the actuator's clock.
func (a *Actuator) Sleep(d time.Duration) {
	if d > 0 {
		a.sleep(d)
	}
}

func (a *Actuator) apply(axis Axis, us uint16) bool {
	if err := a.drv.SetPulse(axis, us); err != nil {
		a.log.Warn("servo write failed", "axis", axis.String(), "us", us, "err", err)
		return false
	}
	a.log.Debug("servo", "axis", axis.String(), "us", us)
	a.Sleep(a.settle)
	return true
}

func (a *Actuator) reject(axis Axis, us uint16) {
	a.log.Debug("servo target out of range", "axis", axis.String(), "us", us)
}
