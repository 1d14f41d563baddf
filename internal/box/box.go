// Package box sequences the servo mechanisms: the autonomous control loop,
// homing and manual teleoperation.
//
// A Controller is driven by exactly one task at a time. It owns the actuator
// and the current arm channel; touch tiers are only read.
package box

import (
	"log/slog"
	"time"

	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/servo"
)

// Timing of the motion sequences.
const (
	// RotateDelay is waited per channel position traversed.
	RotateDelay = 150 * time.Millisecond
	// PollInterval is the push sequence's switch poll.
	PollInterval = 100 * time.Millisecond
	// LidDelay is waited after moving the lid.
	LidDelay = 100 * time.Millisecond
	// WaitDelay is waited after the push arm returns to its waiting position.
	WaitDelay = 100 * time.Millisecond
	// RetreatDelay is waited after retracting the push arm.
	RetreatDelay = 200 * time.Millisecond
	// DefaultCycle is the pause between control cycles.
	DefaultCycle = 10 * time.Millisecond
)

// TouchSource provides the current touch tiers.
type TouchSource interface {
	Tiers() logic.Tiers
}

// Controller runs motion sequences on the actuator.
type Controller struct {
	act      *servo.Actuator
	switches gpio.Reader
	touch    TouchSource
	log      *slog.Logger
	now      func() time.Time
	onEvent  func(logic.Event)
	cycle    time.Duration

	current logic.Channel
	lidOpen bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithEvents registers a callback for PUSH and HOLD events.
// It is called on the control task and must not block.
func WithEvents(fn func(logic.Event)) Option {
	return func(c *Controller) { c.onEvent = fn }
}

// WithCycle overrides the pause between control cycles.
func WithCycle(d time.Duration) Option {
	return func(c *Controller) { c.cycle = d }
}

// NewController creates a Controller. Blocking waits go through the
// actuator's Sleep so a single hook controls time in tests.
func NewController(act *servo.Actuator, switches gpio.Reader, touch TouchSource, opts ...Option) *Controller {
	c := &Controller{
		act:      act,
		switches: switches,
		touch:    touch,
		log:      slog.Default(),
		now:      time.Now,
		cycle:    DefaultCycle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Actuator returns the actuator driven by the controller.
func (c *Controller) Actuator() *servo.Actuator {
	return c.act
}

// Current returns the channel the arm is over.
func (c *Controller) Current() logic.Channel {
	return c.current
}

// LidOpen reports whether the lid was last opened.
func (c *Controller) LidOpen() bool {
	return c.lidOpen
}

// Switches reads the switch map. A read error is logged and reported as !ok.
func (c *Controller) Switches() (logic.SwitchMap, bool) {
	m, err := c.switches.Read()
	if err != nil {
		c.log.Warn("switch read failed", "err", err)
		return 0, false
	}
	return m, true
}

func (c *Controller) touched(ch logic.Channel) bool {
	return c.touch.Tiers().Touched(ch)
}

// RotateTo moves the arm over ch and waits in proportion to the distance.
func (c *Controller) RotateTo(ch logic.Channel) {
	c.rotate(ch, false)
}

func (c *Controller) rotate(ch logic.Channel, force bool) {
	if !ch.Valid() || (ch == c.current && !force) {
		return
	}
	if !c.act.SetRotation(servo.SwitchPositions[ch]) {
		return
	}
	c.act.Sleep(time.Duration(logic.Distance(c.current, ch)) * RotateDelay)
	c.current = ch
}

// OpenLid opens the lid if it is closed.
func (c *Controller) OpenLid() {
	if c.lidOpen {
		return
	}
	if c.act.SetLid(servo.LidOpen) {
		c.act.Sleep(LidDelay)
		c.lidOpen = true
	}
}

// OpenLidFully opens the lid to its maximum.
func (c *Controller) OpenLidFully() {
	if c.act.SetLid(servo.LidMax) {
		c.lidOpen = true
	}
}

// CloseLid closes the lid if it is open, or unconditionally with force.
func (c *Controller) CloseLid(force bool) {
	if !c.lidOpen && !force {
		return
	}
	if c.act.SetLid(servo.LidClosed) {
		c.act.Sleep(LidDelay)
		c.lidOpen = false
	}
}

// PushSwitch runs the push sequence on the current channel: press past the
// switch's travel until it releases or the channel is touched, then return
// to the waiting position. It does nothing if the channel is touched.
// Returns whether the arm moved.
func (c *Controller) PushSwitch() bool {
	ch := c.current
	if c.touched(ch) {
		return false
	}
	c.log.Debug("push", "channel", int(ch))
	if !c.act.SetPush(servo.PushPressed, true) {
		return false
	}
	for {
		if c.touched(ch) {
			c.log.Debug("push aborted by touch", "channel", int(ch))
			break
		}
		c.act.Sleep(PollInterval)
		m, ok := c.Switches()
		if !ok || !m.Pressed(ch) {
			break
		}
	}
	c.act.SetPush(servo.PushWaiting, false)
	c.act.Sleep(WaitDelay)
	return true
}

// Retreat fully retracts the push arm.
func (c *Controller) Retreat() {
	if c.act.SetPush(servo.PushMin, false) {
		c.act.Sleep(RetreatDelay)
	}
}

// Home releases every pressed switch and parks the arm over channel 0 with
// the lid closed.
func (c *Controller) Home() {
	c.log.Info("homing")
	c.OpenLid()
	for ch := logic.Channel(0); ch < logic.NumChannels; ch++ {
		m, ok := c.Switches()
		if ok && m.Pressed(ch) {
			c.RotateTo(ch)
			c.PushSwitch()
		}
	}
	c.act.SetPush(servo.PushMin, false)
	c.RotateTo(0)
	c.CloseLid(false)
}

// StartupPosition puts every mechanism in a known state before any task
// starts: arm over channel 1, push arm retracted, lid closed.
func (c *Controller) StartupPosition() {
	c.rotate(1, true)
	c.Retreat()
	c.act.Sleep(500 * time.Millisecond)
	c.CloseLid(true)
}

func (c *Controller) emit(t logic.EventType, ch logic.Channel, m logic.SwitchMap) {
	if c.onEvent == nil {
		return
	}
	c.onEvent(logic.Event{
		Timestamp: c.now(),
		Type:      t,
		Channel:   ch,
		Switches:  m,
	})
}
