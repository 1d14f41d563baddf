//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/uselessbox/internal/logic"
)

// RealReader reads the switches from actual hardware using the Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// NewRealReader requests the four switch lines on the given chip.
func NewRealReader(chipName string, pins [logic.NumChannels]int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Switch contacts close to ground; the pull-up keeps open contacts high.
	lines, err := chip.RequestLines(pins[:], gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request switch pins %v: %w", pins, err)
	}

	return &RealReader{
		chip:  chip,
		lines: lines,
	}, nil
}

// Read returns the current switch map.
// Inverts raw GPIO: raw 0 = pressed.
func (r *RealReader) Read() (logic.SwitchMap, error) {
	values := make([]int, logic.NumChannels)
	if err := r.lines.Values(values); err != nil {
		return 0, fmt.Errorf("read switch pins: %w", err)
	}

	var pressed [logic.NumChannels]bool
	for i, v := range values {
		pressed[i] = v == 0
	}
	return logic.SwitchMapOf(pressed), nil
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-up before closing so the contacts are
// left in their boot state.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure switch pins: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close switch pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
