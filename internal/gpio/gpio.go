// Package gpio reads the box's switch contacts with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/uselessbox/internal/logic"

// Reader reads the switch contacts.
type Reader interface {
	// Read returns which switches are pressed right now.
	// Contacts pull the line low, so raw 0 = pressed.
	Read() (logic.SwitchMap, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultPins are the BCM line offsets of switches 0-3.
var DefaultPins = [logic.NumChannels]int{17, 16, 4, 18}

// DefaultChip is the GPIO character device holding the switch lines.
const DefaultChip = "gpiochip0"
