// Package mode decodes the boot switch map into options and the operating
// mode, and says which tasks each mode runs.
package mode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/store"
)

// Mode is the operating mode, fixed for the process lifetime.
type Mode int

const (
	Touch Mode = iota
	NoTouch
	Config
	Move
	Kiosk
)

var names = map[Mode]string{
	Touch:   "Touch",
	NoTouch: "NoTouch",
	Config:  "Config",
	Move:    "Move",
	Kiosk:   "Kiosk",
}

func (m Mode) String() string {
	if s, ok := names[m]; ok {
		return s
	}
	return "Unknown"
}

// Parse returns the mode named s, case-insensitively.
func Parse(s string) (Mode, error) {
	for m, name := range names {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return Touch, fmt.Errorf("unknown mode %q", s)
}

// Mode codes: the switch map read after the select switch is released.
var codes = map[logic.SwitchMap]Mode{
	0b0000: Touch,
	0b1000: NoTouch,
	0b0100: Config,
	0b0010: Move,
	0b0110: Kiosk,
}

// FromCode maps a switch map to a mode.
func FromCode(m logic.SwitchMap) (Mode, bool) {
	mode, ok := codes[m&0x0f]
	return mode, ok
}

// Options are the boot options: one switch each, held at power-on.
type Options struct {
	Verbose bool // switch 0: debug logging
	Web     bool // switch 1: status web server
	Battery bool // switch 2: battery calibration profile
	Select  bool // switch 3: choose the mode interactively
}

// DecodeOptions reads the boot options from the switch map at power-on.
func DecodeOptions(m logic.SwitchMap) Options {
	return Options{
		Verbose: m.Pressed(0),
		Web:     m.Pressed(1),
		Battery: m.Pressed(2),
		Select:  m.Pressed(3),
	}
}

// Profile returns the calibration profile chosen by the options.
func (o Options) Profile() store.Profile {
	if o.Battery {
		return store.ProfileBattery
	}
	return store.ProfileNormal
}

// Tasks is the set of workers a mode runs.
type Tasks struct {
	Monitor   bool // touch monitor
	Control   bool // autonomous control loop
	Calibrate bool // one-shot calibration
	Move      bool // touch teleoperation
	Watchdog  bool // restart when every channel reads touched for too long
}

// Tasks returns the composition of m.
// Kiosk is Touch without the watchdog; Move pairs the monitor with teleoperation.
func (m Mode) Tasks() Tasks {
	switch m {
	case NoTouch:
		return Tasks{Control: true, Watchdog: true}
	case Config:
		return Tasks{Calibrate: true, Watchdog: true}
	case Move:
		return Tasks{Monitor: true, Move: true, Watchdog: true}
	case Kiosk:
		return Tasks{Monitor: true, Control: true}
	default:
		return Tasks{Monitor: true, Control: true, Watchdog: true}
	}
}

// SelectPoll is how often the select switch is checked.
const SelectPoll = 100 * time.Millisecond

// Selector runs interactive mode selection.
type Selector struct {
	Switches gpio.Reader
	Log      *slog.Logger
	// Sleep replaces time.Sleep, for tests.
	Sleep func(time.Duration)
}

// Select returns the mode for the boot options. Without the select option
// the box runs in Touch mode. With it, Select waits for switch 3 to be
// released and takes the switch map at that moment as the mode code.
// Unknown codes fall back to Touch.
func (s *Selector) Select(ctx context.Context, opts Options) (Mode, error) {
	if !opts.Select {
		return Touch, nil
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	log.Info("waiting for mode selection")
	var m logic.SwitchMap
	for {
		var err error
		m, err = s.Switches.Read()
		if err != nil {
			return Touch, fmt.Errorf("read mode switches: %w", err)
		}
		if !m.Pressed(3) {
			break
		}
		if err := ctx.Err(); err != nil {
			return Touch, err
		}
		sleep(SelectPoll)
	}

	mode, ok := FromCode(m)
	if !ok {
		log.Warn("unknown mode code, using Touch", "switches", m.String())
		return Touch, nil
	}
	log.Info("mode selected", "mode", mode.String(), "switches", m.String())
	return mode, nil
}
