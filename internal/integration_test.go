package internal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/uselessbox/internal/box"
	"github.com/sweeney/uselessbox/internal/bridge"
	"github.com/sweeney/uselessbox/internal/calibrate"
	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/mqtt"
	"github.com/sweeney/uselessbox/internal/servo"
	"github.com/sweeney/uselessbox/internal/status"
	"github.com/sweeney/uselessbox/internal/store"
	"github.com/sweeney/uselessbox/internal/touch"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// testBox wires a tracker, monitor, controller and event pump the way the
// daemon does, on top of the given hardware.
type testBox struct {
	tracker *status.Tracker
	monitor *touch.Monitor
	ctl     *box.Controller
	pub     *mqtt.FakePublisher
	pump    *mqtt.Pump
}

func newTestBox(sensor touch.Sensor, switches gpio.Reader, drv servo.Driver, sleep func(time.Duration)) *testBox {
	b := &testBox{
		tracker: status.NewTracker(startTime, status.Config{}),
		pub:     mqtt.NewFakePublisher(),
	}
	b.tracker.SetCalibration(store.Defaults(store.ProfileNormal))
	b.pump = mqtt.NewPump(b.pub, 16, nil)
	b.monitor = touch.NewMonitor(sensor, b.tracker, nil)

	act := servo.NewActuator(drv, servo.WithSettle(0), servo.WithSleep(sleep))
	b.ctl = box.NewController(act, switches, b.tracker,
		box.WithClock(func() time.Time { return startTime }),
		box.WithEvents(b.onEvent))
	return b
}

func (b *testBox) onEvent(e logic.Event) {
	if e.Type == logic.EventPush {
		b.tracker.CountPush(e.Channel)
	}
	b.pump.Send(e)
}

// TestIntegrationTouchAndPush follows one session: the operator holds
// channel 2 until the arm pushes, lets go, then flips switch 3, which the
// box flips back.
func TestIntegrationTouchAndPush(t *testing.T) {
	sensor := touch.NewFakeSensor(30)
	switches := gpio.NewFakeReader(0)
	drv := servo.NewFakeDriver()

	polls := 0
	sleep := func(d time.Duration) {
		last, _ := drv.Last(servo.AxisPush)
		if d == box.PollInterval && last == servo.PushPressed {
			polls++
			switches.Set(0)
		}
	}
	b := newTestBox(sensor, switches, drv, sleep)

	// Hold channel 2 for a little over two seconds.
	sensor.Set(2, 8)
	b.monitor.Tick(startTime)
	b.monitor.Tick(startTime.Add(2100 * time.Millisecond))
	if got := b.tracker.Tiers(); got != (logic.Tiers{0, 0, 3, 0}) {
		t.Fatalf("tiers after hold: got %v", got)
	}

	d := b.ctl.Cycle()
	if d.Action != logic.ActionHoldPush || d.Target != 2 {
		t.Fatalf("expected hold-push on 2, got %v on %d", d.Action, d.Target)
	}
	if last, _ := drv.Last(servo.AxisPush); last != servo.PushMax {
		t.Errorf("push arm: got %d, want %d", last, servo.PushMax)
	}

	// Let go.
	sensor.Set(2, 30)
	b.monitor.Tick(startTime.Add(2200 * time.Millisecond))
	if got := b.tracker.Tiers(); got != (logic.Tiers{}) {
		t.Fatalf("tiers after release: got %v", got)
	}

	// Flip switch 3.
	switches.Set(logic.SwitchMapOf([logic.NumChannels]bool{false, false, false, true}))
	d = b.ctl.Cycle()
	if d.Action != logic.ActionPush || d.Target != 3 {
		t.Fatalf("expected push on 3, got %v on %d", d.Action, d.Target)
	}
	if polls != 1 {
		t.Errorf("polls: got %d, want 1", polls)
	}
	if b.ctl.Current() != 3 {
		t.Errorf("current: got %d, want 3", b.ctl.Current())
	}

	// Nothing left to do: the box parks.
	d = b.ctl.Cycle()
	if d.Action != logic.ActionIdle {
		t.Errorf("expected idle, got %v", d.Action)
	}
	if last, _ := drv.Last(servo.AxisLid); last != servo.LidClosed {
		t.Errorf("lid: got %d, want closed", last)
	}

	b.pump.Close()

	if len(b.pub.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(b.pub.Events))
	}
	if b.pub.Events[0].Type != logic.EventHold || b.pub.Events[0].Channel != 2 {
		t.Errorf("event 0: got %s on %d", b.pub.Events[0].Type, b.pub.Events[0].Channel)
	}
	if b.pub.Events[1].Type != logic.EventPush || b.pub.Events[1].Channel != 3 {
		t.Errorf("event 1: got %s on %d", b.pub.Events[1].Type, b.pub.Events[1].Channel)
	}

	expected := `{"box":{"timestamp":"2026-01-01T12:00:00Z","event":"PUSH","channel":3,"switches":"0001"}}`
	if string(b.pub.Payloads[1]) != expected {
		t.Errorf("payload:\ngot:  %s\nwant: %s", b.pub.Payloads[1], expected)
	}

	snap := b.tracker.Snapshot()
	if snap.Pushes != (logic.PushCounts{0, 0, 0, 1}) {
		t.Errorf("push counts: got %v", snap.Pushes)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(snap, nil), &sj); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if sj.Status.Channels[3].Pushes != 1 {
		t.Errorf("status pushes: got %d", sj.Status.Channels[3].Pushes)
	}
}

// TestIntegrationTouchedSwitchIsLeftAlone checks the box never pushes a
// switch while the operator is touching it.
func TestIntegrationTouchedSwitchIsLeftAlone(t *testing.T) {
	sensor := touch.NewFakeSensor(30)
	switches := gpio.NewFakeReader(logic.SwitchMapOf([logic.NumChannels]bool{false, true, false, false}))
	drv := servo.NewFakeDriver()
	b := newTestBox(sensor, switches, drv, func(time.Duration) {})

	sensor.Set(1, 9)
	b.monitor.Tick(startTime)

	d := b.ctl.Cycle()
	if d.Action != logic.ActionIdle {
		t.Fatalf("expected idle, got %v", d.Action)
	}
	for _, c := range drv.Commands {
		if c.Axis == servo.AxisPush && c.US == servo.PushPressed {
			t.Fatal("push arm pressed a touched switch")
		}
	}
	b.pump.Close()
	if len(b.pub.Events) != 0 {
		t.Errorf("expected no events, got %d", len(b.pub.Events))
	}
}

// TestIntegrationCalibrationFeedsMonitor calibrates on a sensor with a much
// larger scale than the defaults, persists the result and checks the monitor
// classifies touches with the new thresholds.
func TestIntegrationCalibrationFeedsMonitor(t *testing.T) {
	sensor := &touch.FakeSensor{}
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		samples := make([]int, 0, calibrate.BaselineSamples+calibrate.TouchedSamples)
		for i := 0; i < calibrate.BaselineSamples; i++ {
			samples = append(samples, 600)
		}
		for i := 0; i < calibrate.TouchedSamples; i++ {
			samples = append(samples, 300)
		}
		sensor.Script(c, samples...)
	}
	drv := servo.NewFakeDriver()
	b := newTestBox(sensor, gpio.NewFakeReader(0), drv, func(time.Duration) {})

	path := filepath.Join(t.TempDir(), "calibration.yaml")
	st := store.NewFileStore(path)
	proc := calibrate.New(b.ctl, sensor, st, store.ProfileNormal, b.tracker,
		calibrate.WithEvents(b.onEvent))

	res := proc.Calibrate()
	if res.SaveErr != nil {
		t.Fatalf("save: %v", res.SaveErr)
	}
	want := logic.Entry{Touched: 300, Untouched: 600, Threshold: 420}
	for c, e := range res.Entries {
		if e != want {
			t.Errorf("channel %d: got %+v, want %+v", c, e, want)
		}
	}

	loaded, err := store.NewFileStore(path).Load(store.ProfileNormal)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded != res.Entries {
		t.Errorf("reloaded entries differ: %+v", loaded)
	}

	// 400 was untouched under the default threshold of 15.
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		sensor.Set(c, 600)
	}
	sensor.Set(1, 400)
	b.monitor.Tick(startTime)
	if got := b.tracker.Tiers(); got != (logic.Tiers{0, 1, 0, 0}) {
		t.Errorf("tiers: got %v", got)
	}

	b.pump.Close()
	if len(b.pub.Events) != 1 || b.pub.Events[0].Type != logic.EventCalibrated {
		t.Fatalf("expected one CALIBRATED event, got %+v", b.pub.Events)
	}
	var p mqtt.Payload
	if err := json.Unmarshal(b.pub.Payloads[0], &p); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if p.Box.RunID != res.RunID {
		t.Errorf("run id: got %q, want %q", p.Box.RunID, res.RunID)
	}
	if len(p.Box.Calibration) != logic.NumChannels || p.Box.Calibration[2].Threshold != 420 {
		t.Errorf("calibration payload: %+v", p.Box.Calibration)
	}
}

// TestIntegrationSerialBridge runs a push sequence with every device behind
// the serial bridge.
func TestIntegrationSerialBridge(t *testing.T) {
	dev := &bridge.FakeDevice{
		Touch:    [logic.NumChannels]int{30, 30, 30, 30},
		Switches: logic.SwitchMapOf([logic.NumChannels]bool{false, true, false, false}),
	}
	link := bridge.New(dev)
	defer link.Close()

	sleep := func(d time.Duration) {
		if d == box.PollInterval && len(dev.Pulses) > 0 && dev.Pulses[len(dev.Pulses)-1] == "p 1900" {
			dev.Switches = 0
		}
	}
	b := newTestBox(link.Touch(), link.Switches(), link, sleep)

	b.monitor.Tick(startTime)
	d := b.ctl.Cycle()
	if d.Action != logic.ActionPush || d.Target != 1 {
		t.Fatalf("expected push on 1, got %v on %d", d.Action, d.Target)
	}

	want := []string{
		"r 1300",
		"l 1600",
		"p 1900",
		"p 1700",
	}
	if len(dev.Pulses) != len(want) {
		t.Fatalf("pulses: got %v, want %v", dev.Pulses, want)
	}
	for i := range want {
		if dev.Pulses[i] != want[i] {
			t.Errorf("pulse %d: got %q, want %q", i, dev.Pulses[i], want[i])
		}
	}

	b.pump.Close()
	if len(b.pub.Events) != 1 || b.pub.Events[0].Type != logic.EventPush {
		t.Errorf("expected one PUSH event, got %+v", b.pub.Events)
	}
}
