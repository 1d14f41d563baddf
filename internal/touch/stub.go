//go:build !linux

package touch

import (
	"errors"

	"github.com/sweeney/uselessbox/internal/logic"
)

// MPR121 is not available on non-Linux platforms.
type MPR121 struct{}

// NewMPR121 returns an error on non-Linux platforms.
func NewMPR121(bus string, addr int) (*MPR121, error) {
	return nil, errors.New("touch: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (m *MPR121) Read(ch logic.Channel) (int, error) {
	return 0, errors.New("touch: not supported")
}

// Close is not implemented on non-Linux platforms.
func (m *MPR121) Close() error {
	return nil
}
