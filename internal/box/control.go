package box

import (
	"context"

	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/servo"
)

// Cycle evaluates the control policy once and carries out the resulting
// motion. It returns the decision taken.
func (c *Controller) Cycle() logic.Decision {
	m, ok := c.Switches()
	if !ok {
		return logic.Decision{Action: logic.ActionIdle, Target: c.current}
	}
	d := logic.Decide(m, c.touch.Tiers(), c.current)

	switch d.Action {
	case logic.ActionSelect:
		c.RotateTo(d.Target)

	case logic.ActionHoldPush:
		c.RotateTo(d.Target)
		c.OpenLid()
		if c.act.Position().Push != servo.PushMax {
			c.log.Debug("hold to push", "channel", int(d.Target))
			c.emit(logic.EventHold, d.Target, m)
			c.act.SetPush(servo.PushMax, false)
		}

	case logic.ActionPush:
		c.RotateTo(d.Target)
		c.OpenLid()
		if c.PushSwitch() {
			c.emit(logic.EventPush, d.Target, m)
		}

	default:
		c.idle()
	}
	return d
}

// idle retracts and closes. Mechanisms already at rest are not commanded
// again, so an idle box does not keep rewriting its PWM outputs.
func (c *Controller) idle() {
	if c.act.Position().Push != servo.PushMin {
		c.Retreat()
	}
	c.CloseLid(false)
}

// Run executes control cycles until ctx is cancelled. Cancellation is only
// observed between cycles; a running push sequence always completes.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("control loop started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("control loop stopped")
			return
		default:
		}
		c.Cycle()
		c.act.Sleep(c.cycle)
	}
}
