package touch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/status"
)

var defaults = [logic.NumChannels]logic.Entry{
	{Touched: 8, Untouched: 30, Threshold: 15},
	{Touched: 8, Untouched: 30, Threshold: 15},
	{Touched: 8, Untouched: 30, Threshold: 15},
	{Touched: 8, Untouched: 30, Threshold: 15},
}

func newTestMonitor(sensor Sensor) (*Monitor, *status.Tracker) {
	tr := status.NewTracker(time.Now(), status.Config{})
	tr.SetCalibration(defaults)
	return NewMonitor(sensor, tr, nil), tr
}

func TestTickUntouched(t *testing.T) {
	m, tr := newTestMonitor(NewFakeSensor(30))

	m.Tick(time.Now())

	if tr.Tiers() != (logic.Tiers{}) {
		t.Errorf("expected no touch, got %v", tr.Tiers())
	}
	snap := tr.Snapshot()
	if snap.Raw[0] != 30 {
		t.Errorf("Raw[0]: got %d, want 30", snap.Raw[0])
	}
	// 100*0.8 + 30*0.2
	if snap.Filtered[0] != 86 {
		t.Errorf("Filtered[0]: got %v, want 86", snap.Filtered[0])
	}
}

func TestTierGrowsWhileTouched(t *testing.T) {
	sensor := NewFakeSensor(30)
	sensor.Set(2, 9)
	m, tr := newTestMonitor(sensor)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	steps := []struct {
		at   time.Duration
		want uint16
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{1000 * time.Millisecond, 2},
		{2005 * time.Millisecond, 3},
		{4100 * time.Millisecond, 5},
	}

	var last uint16
	for _, s := range steps {
		m.Tick(start.Add(s.at))
		got := tr.Tier(2)
		if got != s.want {
			t.Errorf("at %v: tier %d, want %d", s.at, got, s.want)
		}
		if got < last {
			t.Errorf("at %v: tier decreased from %d to %d", s.at, last, got)
		}
		last = got
	}
	if tr.Tier(0) != 0 || tr.Tier(1) != 0 || tr.Tier(3) != 0 {
		t.Errorf("untouched channels changed: %v", tr.Tiers())
	}
}

func TestTierClearsOnRelease(t *testing.T) {
	sensor := NewFakeSensor(30)
	sensor.Script(1, 9, 9, 15, 9)
	m, tr := newTestMonitor(sensor)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Tick(start)
	m.Tick(start.Add(3 * time.Second))
	if tr.Tier(1) != 4 {
		t.Fatalf("tier before release: got %d, want 4", tr.Tier(1))
	}

	// Reading equal to the threshold is a release.
	m.Tick(start.Add(3*time.Second + 5*time.Millisecond))
	if tr.Tier(1) != 0 {
		t.Errorf("tier after release: got %d, want 0", tr.Tier(1))
	}

	// A new touch starts over from tier 1.
	m.Tick(start.Add(10 * time.Second))
	if tr.Tier(1) != 1 {
		t.Errorf("tier after retouch: got %d, want 1", tr.Tier(1))
	}
}

func TestFaultReadingSkipped(t *testing.T) {
	sensor := NewFakeSensor(30)
	sensor.Script(3, 9, 5, 0, 9)
	m, tr := newTestMonitor(sensor)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Tick(start)
	before := tr.Snapshot()

	m.Tick(start.Add(1 * time.Second))
	m.Tick(start.Add(2 * time.Second))
	after := tr.Snapshot()
	if after.Raw[3] != before.Raw[3] || after.Filtered[3] != before.Filtered[3] {
		t.Errorf("fault readings must not update channel 3: before %d/%v after %d/%v",
			before.Raw[3], before.Filtered[3], after.Raw[3], after.Filtered[3])
	}
	if tr.Tier(3) != 1 {
		t.Errorf("tier during faults: got %d, want 1", tr.Tier(3))
	}

	// The touch kept running across the skipped ticks.
	m.Tick(start.Add(3 * time.Second))
	if tr.Tier(3) != 4 {
		t.Errorf("tier after faults: got %d, want 4", tr.Tier(3))
	}
}

func TestReadErrorSkipped(t *testing.T) {
	sensor := NewFakeSensor(9)
	m, tr := newTestMonitor(sensor)
	m.Tick(time.Now())

	sensor.ReadError = errors.New("bus error")
	m.Tick(time.Now())

	if tr.Tiers() != (logic.Tiers{1, 1, 1, 1}) {
		t.Errorf("read errors must keep the previous tiers, got %v", tr.Tiers())
	}
}

func TestThresholdsFollowCalibration(t *testing.T) {
	sensor := NewFakeSensor(17)
	m, tr := newTestMonitor(sensor)

	m.Tick(time.Now())
	if tr.Tier(0) != 0 {
		t.Fatalf("17 is above the default threshold, got tier %d", tr.Tier(0))
	}

	battery := defaults
	battery[0].Threshold = 18
	tr.SetCalibration(battery)

	m.Tick(time.Now())
	if tr.Tier(0) != 1 {
		t.Errorf("17 is below the new threshold, got tier %d", tr.Tier(0))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sensor := NewFakeSensor(9)
	m, tr := newTestMonitor(sensor)
	m.SetInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for tr.Tier(0) == 0 {
		select {
		case <-deadline:
			t.Fatal("monitor never recorded a touch")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFakeSensorRepeatsLast(t *testing.T) {
	f := &FakeSensor{}
	f.Script(0, 1, 2)

	for _, want := range []int{1, 2, 2} {
		got, err := f.Read(0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
	if _, err := f.Read(1); err == nil {
		t.Error("expected error for unscripted channel")
	}
	if _, err := f.Read(4); err == nil {
		t.Error("expected error for invalid channel")
	}
}
