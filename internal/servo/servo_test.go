package servo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestActuator() (*Actuator, *FakeDriver, *[]time.Duration) {
	drv := NewFakeDriver()
	var slept []time.Duration
	a := NewActuator(drv, WithSleep(func(d time.Duration) { slept = append(slept, d) }))
	return a, drv, &slept
}

func TestSetRotationAcceptsAndSettles(t *testing.T) {
	a, drv, slept := newTestActuator()

	require.True(t, a.SetRotation(SwitchPositions[2]))
	require.Equal(t, SwitchPositions[2], a.Position().Rotation)
	require.Equal(t, []Command{{Axis: AxisRotation, US: 1850}}, drv.Commands)
	require.Equal(t, []time.Duration{DefaultSettle}, *slept)
}

func TestOutOfRangeLeavesPositionUnchanged(t *testing.T) {
	tests := []struct {
		name string
		set  func(a *Actuator) bool
	}{
		{"rotation low", func(a *Actuator) bool { return a.SetRotation(749) }},
		{"rotation high", func(a *Actuator) bool { return a.SetRotation(2451) }},
		{"push low", func(a *Actuator) bool { return a.SetPush(1099, false) }},
		{"push high", func(a *Actuator) bool { return a.SetPush(1751, false) }},
		{"push pressed without overtravel", func(a *Actuator) bool { return a.SetPush(PushPressed, false) }},
		{"push beyond overtravel", func(a *Actuator) bool { return a.SetPush(1901, true) }},
		{"push low with overtravel", func(a *Actuator) bool { return a.SetPush(1000, true) }},
		{"lid low", func(a *Actuator) bool { return a.SetLid(1059) }},
		{"lid high", func(a *Actuator) bool { return a.SetLid(2101) }},
		{"zero", func(a *Actuator) bool { return a.SetLid(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, drv, slept := newTestActuator()
			require.True(t, a.SetRotation(1300))
			require.True(t, a.SetPush(PushWaiting, false))
			require.True(t, a.SetLid(LidOpen))
			before := a.Position()
			drv.Reset()
			*slept = nil

			require.False(t, tt.set(a))
			require.Equal(t, before, a.Position())
			require.Empty(t, drv.Commands, "rejected target must never reach the driver")
			require.Empty(t, *slept, "rejected target must not block")
		})
	}
}

func TestPushOvertravel(t *testing.T) {
	a, drv, _ := newTestActuator()

	require.True(t, a.SetPush(PushPressed, true))
	require.Equal(t, PushPressed, a.Position().Push)

	require.True(t, a.SetPush(PushMax, true), "overtravel still accepts the normal range")
	last, ok := drv.Last(AxisPush)
	require.True(t, ok)
	require.Equal(t, PushMax, last)
}

func TestRangeBoundsInclusive(t *testing.T) {
	a, _, _ := newTestActuator()

	require.True(t, a.SetRotation(RotationRange.Min))
	require.True(t, a.SetRotation(RotationRange.Max))
	require.True(t, a.SetPush(PushRange.Min, false))
	require.True(t, a.SetPush(PushRange.Max, false))
	require.True(t, a.SetLid(LidRange.Min))
	require.True(t, a.SetLid(LidRange.Max))
}

func TestDriverErrorKeepsPreviousPosition(t *testing.T) {
	a, drv, _ := newTestActuator()
	require.True(t, a.SetLid(LidClosed))

	drv.SetError = errors.New("write failed")
	require.False(t, a.SetLid(LidOpen))
	require.Equal(t, LidClosed, a.Position().Lid)
}

func TestWithSettle(t *testing.T) {
	var slept []time.Duration
	a := NewActuator(NewFakeDriver(),
		WithSettle(5*time.Millisecond),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	a.SetLid(LidOpen)
	a.Sleep(0)
	require.Equal(t, []time.Duration{5 * time.Millisecond}, slept)
}

func TestSysfsDriver(t *testing.T) {
	chip := t.TempDir()
	for _, ch := range []string{"pwm3", "pwm4", "pwm5"} {
		require.NoError(t, os.Mkdir(filepath.Join(chip, ch), 0o755))
	}

	d, err := NewSysfsDriver(chip, [NumAxes]int{3, 4, 5})
	require.NoError(t, err)

	readAttr := func(ch, attr string) string {
		b, err := os.ReadFile(filepath.Join(chip, ch, attr))
		require.NoError(t, err)
		return string(b)
	}

	require.Equal(t, "20000000", readAttr("pwm3", "period"))
	require.Equal(t, "1", readAttr("pwm5", "enable"))

	require.NoError(t, d.SetPulse(AxisPush, 1700))
	require.Equal(t, "1700000", readAttr("pwm4", "duty_cycle"))

	require.Error(t, d.SetPulse(Axis(7), 1500))

	require.NoError(t, d.Close())
	require.Equal(t, "0", readAttr("pwm3", "enable"))
	_, err = os.Stat(filepath.Join(chip, "unexport"))
	require.True(t, os.IsNotExist(err), "pre-existing channels must not be unexported")
}
