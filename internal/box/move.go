package box

import (
	"context"

	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/servo"
)

// Teleop moves the arm by touch: channel 0/1 rotate left/right, channel 2/3
// push forward/back. Longer touches move faster.
type Teleop struct {
	ctl  *Controller
	rot  uint16
	push uint16
}

// NewTeleop creates a Teleop on top of a controller.
func NewTeleop(ctl *Controller) *Teleop {
	return &Teleop{
		ctl:  ctl,
		rot:  servo.RotationRange.Min,
		push: servo.PushRange.Min,
	}
}

// Prepare homes the box and opens the lid all the way.
func (t *Teleop) Prepare() {
	t.ctl.Home()
	t.ctl.OpenLidFully()
	pos := t.ctl.act.Position()
	if pos.Rotation != 0 {
		t.rot = pos.Rotation
	}
	if pos.Push != 0 {
		t.push = pos.Push
	}
}

// Step applies the current touches once.
func (t *Teleop) Step() {
	tiers := t.ctl.touch.Tiers()

	rot := int(t.rot)
	rot = logic.Jog(rot, tiers[0], -1, int(servo.RotationRange.Min), int(servo.RotationRange.Max))
	rot = logic.Jog(rot, tiers[1], +1, int(servo.RotationRange.Min), int(servo.RotationRange.Max))

	push := int(t.push)
	push = logic.Jog(push, tiers[2], +1, int(servo.PushRange.Min), int(servo.PushRange.Max))
	push = logic.Jog(push, tiers[3], -1, int(servo.PushRange.Min), int(servo.PushRange.Max))

	if uint16(push) != t.push && t.ctl.act.SetPush(uint16(push), false) {
		t.push = uint16(push)
		t.ctl.log.Debug("move", "push", t.push, "rot", t.rot)
	}
	if uint16(rot) != t.rot && t.ctl.act.SetRotation(uint16(rot)) {
		t.rot = uint16(rot)
		t.ctl.log.Debug("move", "push", t.push, "rot", t.rot)
	}
}

// Run prepares the box and then steps until ctx is cancelled.
func (t *Teleop) Run(ctx context.Context) {
	t.ctl.log.Info("move mode started")
	t.Prepare()
	for {
		select {
		case <-ctx.Done():
			t.ctl.log.Info("move mode stopped")
			return
		default:
		}
		t.Step()
		t.ctl.act.Sleep(t.ctl.cycle)
	}
}
