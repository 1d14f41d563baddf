package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/uselessbox/internal/logic"
)

// FakeReader is a test double that returns scripted switch maps.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted switch maps to return.
	// Each call to Read() consumes the next sample.
	Samples []logic.SwitchMap

	// index tracks current position in Samples
	index int

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...logic.SwitchMap) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (logic.SwitchMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Set replaces the script with a single map returned from now on.
func (f *FakeReader) Set(m logic.SwitchMap) {
	f.mu.Lock()
	f.Samples = []logic.SwitchMap{m}
	f.index = 0
	f.mu.Unlock()
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Reads = 0
	f.Closed = false
	f.mu.Unlock()
}
