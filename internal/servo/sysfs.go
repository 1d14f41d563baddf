package servo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Period is the servo frame period (50 Hz).
const Period = 20 * time.Millisecond

// DefaultPWMChip is the sysfs directory of the PWM controller.
const DefaultPWMChip = "/sys/class/pwm/pwmchip0"

// DefaultChannels maps rotation, push and lid to PWM channels.
var DefaultChannels = [NumAxes]int{0, 1, 2}

// SysfsDriver drives servos through the Linux sysfs PWM interface.
type SysfsDriver struct {
	chip     string
	channels [NumAxes]int
	exported [NumAxes]bool
}

// NewSysfsDriver exports and enables one PWM channel per axis.
func NewSysfsDriver(chip string, channels [NumAxes]int) (*SysfsDriver, error) {
	d := &SysfsDriver{chip: chip, channels: channels}

	for axis, ch := range channels {
		dir := d.channelDir(Axis(axis))
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			if err := writeAttr(filepath.Join(chip, "export"), strconv.Itoa(ch)); err != nil {
				d.Close()
				return nil, fmt.Errorf("export pwm%d: %w", ch, err)
			}
			d.exported[axis] = true
		}
		if err := writeAttr(filepath.Join(dir, "period"), strconv.FormatInt(Period.Nanoseconds(), 10)); err != nil {
			d.Close()
			return nil, fmt.Errorf("set period pwm%d: %w", ch, err)
		}
		if err := writeAttr(filepath.Join(dir, "enable"), "1"); err != nil {
			d.Close()
			return nil, fmt.Errorf("enable pwm%d: %w", ch, err)
		}
	}

	return d, nil
}

// SetPulse writes the duty cycle for the axis.
func (d *SysfsDriver) SetPulse(axis Axis, us uint16) error {
	if axis < 0 || axis >= NumAxes {
		return fmt.Errorf("unknown axis %d", axis)
	}
	ns := (time.Duration(us) * time.Microsecond).Nanoseconds()
	if err := writeAttr(filepath.Join(d.channelDir(axis), "duty_cycle"), strconv.FormatInt(ns, 10)); err != nil {
		return fmt.Errorf("set duty %s: %w", axis, err)
	}
	return nil
}

// Close disables the outputs so the servos go limp, and unexports channels
// this driver exported.
func (d *SysfsDriver) Close() error {
	var errs []error
	for axis, ch := range d.channels {
		dir := d.channelDir(Axis(axis))
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := writeAttr(filepath.Join(dir, "enable"), "0"); err != nil {
			errs = append(errs, fmt.Errorf("disable pwm%d: %w", ch, err))
		}
		if d.exported[axis] {
			if err := writeAttr(filepath.Join(d.chip, "unexport"), strconv.Itoa(ch)); err != nil {
				errs = append(errs, fmt.Errorf("unexport pwm%d: %w", ch, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (d *SysfsDriver) channelDir(axis Axis) string {
	return filepath.Join(d.chip, "pwm"+strconv.Itoa(d.channels[axis]))
}

func writeAttr(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
