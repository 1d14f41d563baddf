package servo

import "sync"

// Command is one pulse recorded by FakeDriver.
type Command struct {
	Axis Axis
	US   uint16
}

// FakeDriver records commanded pulses for test assertions.
type FakeDriver struct {
	mu sync.Mutex

	// Commands contains every pulse written, in order.
	Commands []Command

	// SetError, if set, will be returned by SetPulse.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// SetPulse records the command.
func (f *FakeDriver) SetPulse(axis Axis, us uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Commands = append(f.Commands, Command{Axis: axis, US: us})
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// For returns the pulses written to one axis, in order.
func (f *FakeDriver) For(axis Axis) []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint16
	for _, c := range f.Commands {
		if c.Axis == axis {
			out = append(out, c.US)
		}
	}
	return out
}

// Last returns the last pulse written to axis and whether there was one.
func (f *FakeDriver) Last(axis Axis) (uint16, bool) {
	p := f.For(axis)
	if len(p) == 0 {
		return 0, false
	}
	return p[len(p)-1], true
}

// Reset clears recorded commands.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	f.Commands = nil
	f.SetError = nil
	f.Closed = false
	f.mu.Unlock()
}
