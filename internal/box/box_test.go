package box

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/servo"
)

type fakeTouch struct {
	mu    sync.Mutex
	tiers logic.Tiers
}

func (f *fakeTouch) Tiers() logic.Tiers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tiers
}

func (f *fakeTouch) Set(tiers logic.Tiers) {
	f.mu.Lock()
	f.tiers = tiers
	f.mu.Unlock()
}

type rig struct {
	drv     *servo.FakeDriver
	sw      *gpio.FakeReader
	touch   *fakeTouch
	ctl     *Controller
	slept   []time.Duration
	polls   int
	events  []logic.Event
	onPoll  func()
	onSleep func(time.Duration)
}

// newRig builds a controller whose actuator has no settle delay, so every
// sleep the hook sees comes from the controller's own sequencing.
func newRig(switches logic.SwitchMap) *rig {
	r := &rig{
		drv:   servo.NewFakeDriver(),
		sw:    gpio.NewFakeReader(switches),
		touch: &fakeTouch{},
	}
	act := servo.NewActuator(r.drv, servo.WithSettle(0), servo.WithSleep(r.sleep))
	r.ctl = NewController(act, r.sw, r.touch, WithEvents(func(e logic.Event) {
		r.events = append(r.events, e)
	}))
	return r
}

func (r *rig) sleep(d time.Duration) {
	r.slept = append(r.slept, d)
	if last, ok := r.drv.Last(servo.AxisPush); ok && last == servo.PushPressed && d == PollInterval {
		r.polls++
		if r.onPoll != nil {
			r.onPoll()
		}
	}
	if r.onSleep != nil {
		r.onSleep(d)
	}
}

func pressed(chs ...logic.Channel) logic.SwitchMap {
	var p [logic.NumChannels]bool
	for _, c := range chs {
		p[c] = true
	}
	return logic.SwitchMapOf(p)
}

func TestHoldToPush(t *testing.T) {
	r := newRig(0)
	r.touch.Set(logic.Tiers{0, 0, 3, 0})

	d := r.ctl.Cycle()
	require.Equal(t, logic.Decision{Action: logic.ActionHoldPush, Target: 2}, d)

	require.Equal(t, []uint16{1850}, r.drv.For(servo.AxisRotation))
	require.Equal(t, []uint16{servo.LidOpen}, r.drv.For(servo.AxisLid))
	require.Equal(t, []uint16{servo.PushMax}, r.drv.For(servo.AxisPush))
	require.Contains(t, r.slept, 2*RotateDelay)
	require.Len(t, r.events, 1)
	require.Equal(t, logic.EventHold, r.events[0].Type)
	require.Equal(t, logic.Channel(2), r.events[0].Channel)

	// Holding on: nothing is commanded again.
	r.ctl.Cycle()
	require.Len(t, r.drv.Commands, 3)
	require.Len(t, r.events, 1)
}

func TestSingleTouchSelects(t *testing.T) {
	r := newRig(0)
	r.touch.Set(logic.Tiers{0, 1, 0, 0})

	d := r.ctl.Cycle()
	require.Equal(t, logic.ActionSelect, d.Action)
	require.Equal(t, []uint16{1300}, r.drv.For(servo.AxisRotation))
	require.Empty(t, r.drv.For(servo.AxisLid))
	require.Empty(t, r.drv.For(servo.AxisPush))
	require.Equal(t, logic.Channel(1), r.ctl.Current())
}

func TestAmbiguousTouchIdles(t *testing.T) {
	r := newRig(0)
	r.touch.Set(logic.Tiers{0, 0, 3, 0})
	r.ctl.Cycle()
	r.drv.Reset()

	r.touch.Set(logic.Tiers{0, 1, 0, 1})
	d := r.ctl.Cycle()
	require.Equal(t, logic.ActionIdle, d.Action)

	require.Equal(t, []uint16{servo.PushMin}, r.drv.For(servo.AxisPush))
	require.Equal(t, []uint16{servo.LidClosed}, r.drv.For(servo.AxisLid))
	require.Empty(t, r.drv.For(servo.AxisRotation), "ambiguous touch must not rotate")
	require.Equal(t, logic.Channel(2), r.ctl.Current())
	require.False(t, r.ctl.LidOpen())
	require.Contains(t, r.slept, RetreatDelay)
}

func TestIdleAtRestCommandsNothing(t *testing.T) {
	r := newRig(0)
	r.ctl.StartupPosition()
	r.drv.Reset()

	r.ctl.Cycle()
	r.ctl.Cycle()
	require.Empty(t, r.drv.Commands)
}

func TestNearestTieGoesToLowerChannel(t *testing.T) {
	r := newRig(pressed(0, 2))
	r.ctl.RotateTo(1)
	r.drv.Reset()
	r.onPoll = func() { r.sw.Set(pressed(2)) }

	d := r.ctl.Cycle()
	require.Equal(t, logic.Decision{Action: logic.ActionPush, Target: 0}, d)
	require.Equal(t, []uint16{850}, r.drv.For(servo.AxisRotation))
	require.Equal(t, []uint16{servo.LidOpen}, r.drv.For(servo.AxisLid))
	require.Equal(t, []uint16{servo.PushPressed, servo.PushWaiting}, r.drv.For(servo.AxisPush))
	require.Equal(t, 1, r.polls)

	require.Len(t, r.events, 1)
	require.Equal(t, logic.EventPush, r.events[0].Type)
	require.Equal(t, logic.Channel(0), r.events[0].Channel)
	require.Equal(t, pressed(0, 2), r.events[0].Switches)
}

func TestTouchMidPollRetreats(t *testing.T) {
	r := newRig(pressed(2))
	r.onPoll = func() { r.touch.Set(logic.Tiers{0, 0, 1, 0}) }

	r.ctl.Cycle()

	require.Equal(t, 1, r.polls, "a touch must end the poll at the next check")
	require.Equal(t, []uint16{servo.PushPressed, servo.PushWaiting}, r.drv.For(servo.AxisPush))
	last, _ := r.drv.Last(servo.AxisPush)
	require.Equal(t, servo.PushWaiting, last)
}

func TestPushUntilReleased(t *testing.T) {
	r := newRig(pressed(3))
	r.onPoll = func() {
		if r.polls == 3 {
			r.sw.Set(0)
		}
	}

	r.ctl.Cycle()
	require.Equal(t, 3, r.polls)
	require.Equal(t, logic.Channel(3), r.ctl.Current())
	require.Contains(t, r.slept, 3*RotateDelay)
}

func TestPressedAndTouchedIdles(t *testing.T) {
	r := newRig(pressed(2))
	r.touch.Set(logic.Tiers{0, 0, 4, 0})

	d := r.ctl.Cycle()
	require.Equal(t, logic.ActionIdle, d.Action)
	require.NotContains(t, r.drv.For(servo.AxisPush), servo.PushPressed)
	require.Empty(t, r.events)
}

func TestPushSwitchSkipsTouchedChannel(t *testing.T) {
	r := newRig(pressed(0))
	r.touch.Set(logic.Tiers{1, 0, 0, 0})

	require.False(t, r.ctl.PushSwitch())
	require.Empty(t, r.drv.Commands)
}

func TestSwitchReadErrorEndsPush(t *testing.T) {
	r := newRig(pressed(0))
	r.onPoll = func() { r.sw.ReadError = errors.New("gpio gone") }

	require.True(t, r.ctl.PushSwitch())
	require.Equal(t, 1, r.polls)

	// No switch map, no decision.
	d := r.ctl.Cycle()
	require.Equal(t, logic.ActionIdle, d.Action)
}

func TestRotateTo(t *testing.T) {
	r := newRig(0)

	r.ctl.RotateTo(3)
	require.Equal(t, []time.Duration{3 * RotateDelay}, r.slept)

	r.ctl.RotateTo(3)
	r.ctl.RotateTo(4)
	require.Equal(t, []uint16{2400}, r.drv.For(servo.AxisRotation))
}

func TestLidOnlyMovesWhenNeeded(t *testing.T) {
	r := newRig(0)

	r.ctl.CloseLid(false)
	require.Empty(t, r.drv.Commands)

	r.ctl.OpenLid()
	r.ctl.OpenLid()
	r.ctl.CloseLid(false)
	r.ctl.CloseLid(true)
	require.Equal(t, []uint16{servo.LidOpen, servo.LidClosed, servo.LidClosed}, r.drv.For(servo.AxisLid))
}

func TestHome(t *testing.T) {
	r := newRig(pressed(1, 3))
	m := pressed(1, 3)
	r.onPoll = func() {
		p := [logic.NumChannels]bool{}
		for c := logic.Channel(0); c < logic.NumChannels; c++ {
			p[c] = m.Pressed(c) && c != r.ctl.Current()
		}
		m = logic.SwitchMapOf(p)
		r.sw.Set(m)
	}

	r.ctl.Home()

	require.Equal(t, []uint16{1300, 2400, 850}, r.drv.For(servo.AxisRotation))
	require.Equal(t, []uint16{servo.LidOpen, servo.LidClosed}, r.drv.For(servo.AxisLid))
	last, _ := r.drv.Last(servo.AxisPush)
	require.Equal(t, servo.PushMin, last)
	require.Equal(t, logic.Channel(0), r.ctl.Current())
	require.False(t, r.ctl.LidOpen())
	require.Equal(t, 2, r.polls)
}

func TestStartupPosition(t *testing.T) {
	r := newRig(0)

	r.ctl.StartupPosition()

	require.Equal(t, []uint16{1300}, r.drv.For(servo.AxisRotation))
	require.Equal(t, []uint16{servo.PushMin}, r.drv.For(servo.AxisPush))
	require.Equal(t, []uint16{servo.LidClosed}, r.drv.For(servo.AxisLid), "lid is closed even if believed closed")
	require.Equal(t, logic.Channel(1), r.ctl.Current())
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(0)
	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	r.onSleep = func(d time.Duration) {
		if d == DefaultCycle {
			cycles++
			if cycles == 3 {
				cancel()
			}
		}
	}

	r.ctl.Run(ctx)
	require.Equal(t, 3, cycles)
}

func TestTeleop(t *testing.T) {
	r := newRig(0)
	tel := NewTeleop(r.ctl)
	tel.Prepare()

	last, _ := r.drv.Last(servo.AxisLid)
	require.Equal(t, servo.LidMax, last)
	r.drv.Reset()

	steps := []struct {
		name  string
		tiers logic.Tiers
		rot   uint16
		push  uint16
	}{
		{"right slow", logic.Tiers{0, 1, 0, 0}, 751, 1100},
		{"right fast", logic.Tiers{0, 3, 0, 0}, 761, 1100},
		{"forward fast", logic.Tiers{0, 0, 2, 0}, 761, 1110},
		{"back clamps", logic.Tiers{0, 0, 0, 5}, 761, 1100},
		{"left fast", logic.Tiers{4, 0, 0, 0}, 751, 1100},
		{"left clamps at min", logic.Tiers{4, 0, 0, 0}, 750, 1100},
		{"forward and back cancel", logic.Tiers{0, 0, 1, 1}, 750, 1100},
	}
	for _, s := range steps {
		r.touch.Set(s.tiers)
		tel.Step()
		pos := r.ctl.Actuator().Position()
		require.Equal(t, s.rot, pos.Rotation, s.name)
		require.Equal(t, s.push, pos.Push, s.name)
	}
	require.Equal(t, []uint16{751, 761, 751, 750}, r.drv.For(servo.AxisRotation))
	require.Equal(t, []uint16{1110, 1100}, r.drv.For(servo.AxisPush))
}

func TestTeleopRunStopsOnCancel(t *testing.T) {
	r := newRig(0)
	ctx, cancel := context.WithCancel(context.Background())
	r.onSleep = func(d time.Duration) {
		if d == DefaultCycle {
			cancel()
		}
	}

	NewTeleop(r.ctl).Run(ctx)
	last, _ := r.drv.Last(servo.AxisLid)
	require.Equal(t, servo.LidMax, last)
}
