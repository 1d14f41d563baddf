// Package bridge talks to a microcontroller that owns the box hardware over a
// serial line. It is an alternative to the Linux GPIO/PWM/I2C backends.
//
// Protocol: one newline-terminated ASCII request, one response line.
//
//	T<ch>          -> decimal raw touch reading
//	W              -> switch map, channel 0 first ("1010")
//	S<r|p|l> <us>  -> "OK" or "ERR <msg>"
package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/servo"
)

// Defaults for the serial link.
const (
	DefaultBaud    = 115200
	DefaultTimeout = 500 * time.Millisecond
)

// ErrTimeout is returned when the device does not answer in time.
var ErrTimeout = errors.New("bridge: read timeout")

var axisCodes = [servo.NumAxes]byte{
	servo.AxisRotation: 'r',
	servo.AxisPush:     'p',
	servo.AxisLid:      'l',
}

// Bridge is a request/response client. Calls are serialized, so the touch
// monitor and the control task may share one Bridge.
type Bridge struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	src  timeoutReader
	r    *bufio.Reader
}

// timeoutReader turns the serial port's empty read on timeout into an error.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// Open opens the serial port and returns a Bridge on it.
func Open(name string, baud int) (*Bridge, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(DefaultTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	// Drop whatever the device printed while booting.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	return New(port), nil
}

// New creates a Bridge on an already open connection.
func New(port io.ReadWriteCloser) *Bridge {
	src := timeoutReader{r: port}
	return &Bridge{
		port: port,
		src:  src,
		r:    bufio.NewReader(src),
	}
}

// Call sends one request line and returns the response line without its
// line ending.
func (b *Bridge) Call(req string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := io.WriteString(b.port, req+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", req, err)
	}
	line, err := b.r.ReadString('\n')
	if err != nil {
		// A partial line must not be read as the next response.
		b.r.Reset(b.src)
		return "", fmt.Errorf("response to %q: %w", req, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadTouch returns the raw reading of one channel.
func (b *Bridge) ReadTouch(ch logic.Channel) (int, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("invalid channel %d", ch)
	}
	resp, err := b.Call(fmt.Sprintf("T%d", ch))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("touch %d: bad reading %q", ch, resp)
	}
	return v, nil
}

// ReadSwitches returns the live switch map.
func (b *Bridge) ReadSwitches() (logic.SwitchMap, error) {
	resp, err := b.Call("W")
	if err != nil {
		return 0, err
	}
	return ParseSwitchMap(resp)
}

// SetPulse commands a pulse width on one axis.
func (b *Bridge) SetPulse(axis servo.Axis, us uint16) error {
	if axis < 0 || int(axis) >= servo.NumAxes {
		return fmt.Errorf("invalid axis %d", axis)
	}
	resp, err := b.Call(fmt.Sprintf("S%c %d", axisCodes[axis], us))
	if err != nil {
		return err
	}
	if resp == "OK" {
		return nil
	}
	if msg, ok := strings.CutPrefix(resp, "ERR"); ok {
		return fmt.Errorf("set %s: %s", axis, strings.TrimSpace(msg))
	}
	return fmt.Errorf("set %s: unexpected response %q", axis, resp)
}

// Close closes the connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}

// ParseSwitchMap parses a map written channel 0 first, e.g. "1010".
func ParseSwitchMap(s string) (logic.SwitchMap, error) {
	if len(s) != logic.NumChannels {
		return 0, fmt.Errorf("bad switch map %q", s)
	}
	var pressed [logic.NumChannels]bool
	for i := 0; i < logic.NumChannels; i++ {
		switch s[i] {
		case '1':
			pressed[i] = true
		case '0':
		default:
			return 0, fmt.Errorf("bad switch map %q", s)
		}
	}
	return logic.SwitchMapOf(pressed), nil
}

// Touch adapts the bridge to touch.Sensor.
func (b *Bridge) Touch() *Touch { return &Touch{b} }

// Switches adapts the bridge to gpio.Reader.
func (b *Bridge) Switches() *Switches { return &Switches{b} }

// Touch reads touch channels through the bridge.
type Touch struct{ b *Bridge }

// Read implements touch.Sensor.
func (t *Touch) Read(ch logic.Channel) (int, error) { return t.b.ReadTouch(ch) }

// Close is a no-op; the Bridge owns the connection.
func (t *Touch) Close() error { return nil }

// Switches reads the switch map through the bridge.
type Switches struct{ b *Bridge }

// Read implements gpio.Reader.
func (s *Switches) Read() (logic.SwitchMap, error) { return s.b.ReadSwitches() }

// Close is a no-op; the Bridge owns the connection.
func (s *Switches) Close() error { return nil }
