package touch

import (
	"errors"
	"sync"

	"github.com/sweeney/uselessbox/internal/logic"
)

// Default bus settings for the MPR121 breakout.
const (
	DefaultBus  = "/dev/i2c-1"
	DefaultAddr = 0x5A
)

// FakeSensor is a test double that returns scripted readings per channel.
type FakeSensor struct {
	mu sync.Mutex

	// Samples contains scripted readings per channel.
	// Each Read consumes the next sample; the last one repeats.
	Samples [logic.NumChannels][]int

	index [logic.NumChannels]int

	// Reads counts calls to Read per channel.
	Reads [logic.NumChannels]int

	// ReadError, if set, will be returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSensor creates a FakeSensor that reads v on every channel.
func NewFakeSensor(v int) *FakeSensor {
	f := &FakeSensor{}
	for c := range f.Samples {
		f.Samples[c] = []int{v}
	}
	return f
}

// Read returns the next scripted reading of ch.
func (f *FakeSensor) Read(ch logic.Channel) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !ch.Valid() {
		return 0, errors.New("invalid channel")
	}
	f.Reads[ch]++
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	s := f.Samples[ch]
	if len(s) == 0 {
		return 0, errors.New("no samples configured")
	}
	v := s[f.index[ch]]
	if f.index[ch] < len(s)-1 {
		f.index[ch]++
	}
	return v, nil
}

// Set makes ch read v from now on.
func (f *FakeSensor) Set(ch logic.Channel, v int) {
	f.mu.Lock()
	f.Samples[ch] = []int{v}
	f.index[ch] = 0
	f.mu.Unlock()
}

// Script replaces the readings of ch.
func (f *FakeSensor) Script(ch logic.Channel, samples ...int) {
	f.mu.Lock()
	f.Samples[ch] = samples
	f.index[ch] = 0
	f.mu.Unlock()
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
