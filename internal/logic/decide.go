package logic

// Action is what one control cycle does.
type Action int

const (
	// ActionIdle retracts the push arm and closes the lid.
	ActionIdle Action = iota
	// ActionSelect rotates to the single touched channel.
	ActionSelect
	// ActionHoldPush rotates, opens the lid and drives the push arm to full
	// travel while the operator keeps touching.
	ActionHoldPush
	// ActionPush rotates to a pressed switch and runs the push sequence.
	ActionPush
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionSelect:
		return "select"
	case ActionHoldPush:
		return "hold-push"
	case ActionPush:
		return "push"
	}
	return "unknown"
}

// HoldTier is the tier above which a single touch becomes the hold-to-push gesture.
const HoldTier = 2

// Decision is the outcome of one control cycle.
type Decision struct {
	Action Action
	Target Channel
}

// Decide evaluates the control policy for one cycle.
//
// With no switch pressed, exactly one touched channel is the operator's
// selection; zero or several touches fall back to idle. The selection rotates
// from tier 1, with no one-second wait. With switches pressed, the nearest
// pressed channel that is not touched is pushed back; if every pressed
// channel is being touched the box idles rather than fight the operator.
func Decide(switches SwitchMap, tiers Tiers, current Channel) Decision {
	if !switches.Any() {
		c, ok := tiers.Single()
		if !ok {
			return Decision{Action: ActionIdle, Target: current}
		}
		if tiers[c] > HoldTier {
			return Decision{Action: ActionHoldPush, Target: c}
		}
		return Decision{Action: ActionSelect, Target: c}
	}

	if c, ok := Nearest(switches, tiers, current); ok {
		return Decision{Action: ActionPush, Target: c}
	}
	return Decision{Action: ActionIdle, Target: current}
}

// Nearest returns the pressed, untouched channel closest to current.
// Ties go to the lowest index.
func Nearest(switches SwitchMap, tiers Tiers, current Channel) (Channel, bool) {
	best := Channel(-1)
	bestDist := NumChannels + 1
	for c := Channel(0); c < NumChannels; c++ {
		if !switches.Pressed(c) || tiers.Touched(c) {
			continue
		}
		if d := distance(c, current); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, best >= 0
}

// Distance is the number of arm positions between two channels.
func Distance(a, b Channel) int {
	return distance(a, b)
}

func distance(a, b Channel) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
