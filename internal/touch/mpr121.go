//go:build linux

package touch

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sweeney/uselessbox/internal/logic"
)

// i2cSlave is the i2c-dev ioctl that selects the target address.
const i2cSlave = 0x0703

const (
	regFilteredData = 0x04
	regTouchTh      = 0x41
	regECR          = 0x5E
	regSoftReset    = 0x80
)

// init sequence after soft reset: baseline filtering, debounce, charge
// current and time. Touch/release thresholds are written per electrode.
var mpr121Init = [][2]byte{
	{0x2B, 0x01}, {0x2C, 0x01}, {0x2D, 0x0E}, {0x2E, 0x00},
	{0x2F, 0x01}, {0x30, 0x05}, {0x31, 0x01}, {0x32, 0x00},
	{0x33, 0x00}, {0x34, 0x00}, {0x35, 0x00},
	{0x5B, 0x00}, {0x5C, 0x10}, {0x5D, 0x20},
}

// MPR121 reads electrode filtered data from an MPR121 over /dev/i2c-N.
// Channels 0-3 map to electrodes 0-3.
type MPR121 struct {
	mu sync.Mutex
	fd int
}

// NewMPR121 opens the bus, resets the controller and starts electrodes 0-3.
func NewMPR121(bus string, addr int) (*MPR121, error) {
	fd, err := unix.Open(bus, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", bus, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("select i2c address 0x%02x: %w", addr, err)
	}

	m := &MPR121{fd: fd}
	if err := m.configure(); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure mpr121: %w", err)
	}
	return m, nil
}

func (m *MPR121) configure() error {
	if err := m.write(regSoftReset, 0x63); err != nil {
		return err
	}
	// Registers are only writable in stop mode.
	if err := m.write(regECR, 0x00); err != nil {
		return err
	}
	for _, rv := range mpr121Init {
		if err := m.write(rv[0], rv[1]); err != nil {
			return err
		}
	}
	for e := byte(0); e < 12; e++ {
		if err := m.write(regTouchTh+2*e, 12); err != nil {
			return err
		}
		if err := m.write(regTouchTh+2*e+1, 6); err != nil {
			return err
		}
	}
	// Baseline tracking on, electrodes 0-3 enabled.
	return m.write(regECR, 0x80|logic.NumChannels)
}

func (m *MPR121) write(reg, val byte) error {
	if _, err := unix.Write(m.fd, []byte{reg, val}); err != nil {
		return fmt.Errorf("write reg 0x%02x: %w", reg, err)
	}
	return nil
}

// Read returns the 10-bit filtered data of one electrode.
func (m *MPR121) Read(ch logic.Channel) (int, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("invalid channel %d", ch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := byte(regFilteredData + 2*int(ch))
	if _, err := unix.Write(m.fd, []byte{reg}); err != nil {
		return 0, fmt.Errorf("select reg 0x%02x: %w", reg, err)
	}
	buf := make([]byte, 2)
	n, err := unix.Read(m.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("read reg 0x%02x: %w", reg, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short read on reg 0x%02x: %d bytes", reg, n)
	}
	return int(buf[0]) | int(buf[1]&0x03)<<8, nil
}

// Close stops the electrodes and closes the bus.
func (m *MPR121) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if err := m.write(regECR, 0x00); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(m.fd); err != nil {
		errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
