package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sweeney/uselessbox/internal/logic"
)

// FakeDevice emulates the microcontroller end of the link.
// Reads return nothing when no response is pending, like a serial port
// whose read timeout expired.
type FakeDevice struct {
	mu sync.Mutex

	// Touch holds the reading returned for each channel.
	Touch [logic.NumChannels]int

	// Switches is the switch map returned for W.
	Switches logic.SwitchMap

	// Pulses records every accepted S request as "<axis> <us>".
	Pulses []string

	// Reject makes S requests fail with this message.
	Reject string

	// Silent stops the device from answering.
	Silent bool

	// Requests records every request line.
	Requests []string

	// Closed tracks if Close was called.
	Closed bool

	in  []byte
	out []byte
}

// Write receives request bytes and queues a response per complete line.
func (f *FakeDevice) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.in = append(f.in, p...)
	for {
		i := strings.IndexByte(string(f.in), '\n')
		if i < 0 {
			break
		}
		req := string(f.in[:i])
		f.in = f.in[i+1:]
		f.Requests = append(f.Requests, req)
		if !f.Silent {
			f.out = append(f.out, f.respond(req)+"\r\n"...)
		}
	}
	return len(p), nil
}

func (f *FakeDevice) respond(req string) string {
	switch {
	case req == "W":
		return f.Switches.String()
	case strings.HasPrefix(req, "T"):
		ch, err := strconv.Atoi(req[1:])
		if err != nil || !logic.Channel(ch).Valid() {
			return "ERR bad channel"
		}
		return strconv.Itoa(f.Touch[ch])
	case strings.HasPrefix(req, "S"):
		if f.Reject != "" {
			return "ERR " + f.Reject
		}
		var axis byte
		var us int
		if _, err := fmt.Sscanf(req, "S%c %d", &axis, &us); err != nil {
			return "ERR bad request"
		}
		f.Pulses = append(f.Pulses, fmt.Sprintf("%c %d", axis, us))
		return "OK"
	}
	return "ERR unknown command"
}

// Read returns pending response bytes.
func (f *FakeDevice) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.out)
	f.out = f.out[n:]
	return n, nil
}

// Close marks the device as closed.
func (f *FakeDevice) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
