// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/uselessbox/internal/logic"
)

// Topic is the MQTT topic for box events.
const Topic = "uselessbox/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "uselessbox/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a box event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RESTART"
	Reason     string // e.g., "SIGTERM", "WATCHDOG"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Box BoxPayload `json:"box"`
}

// BoxPayload contains the box event details.
type BoxPayload struct {
	Timestamp   string            `json:"timestamp"`
	Event       string            `json:"event"`
	Channel     *int              `json:"channel,omitempty"`
	Switches    string            `json:"switches,omitempty"`
	Calibration []CalibrationJSON `json:"calibration,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
}

// CalibrationJSON is one channel's calibration result.
type CalibrationJSON struct {
	Channel   int    `json:"channel"`
	Min       uint16 `json:"min"`
	Max       uint16 `json:"max"`
	Threshold uint16 `json:"threshold"`
}

// FormatPayload creates the JSON payload for a box event.
// Calibration events carry the results instead of a channel.
func FormatPayload(event logic.Event) ([]byte, error) {
	inner := BoxPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		RunID:     event.RunID,
	}
	if event.Type == logic.EventCalibrated {
		for c, e := range event.Calibration {
			inner.Calibration = append(inner.Calibration, CalibrationJSON{
				Channel:   c,
				Min:       e.Touched,
				Max:       e.Untouched,
				Threshold: e.Threshold,
			})
		}
	} else {
		ch := int(event.Channel)
		inner.Channel = &ch
		inner.Switches = event.Switches.String()
	}
	return json.Marshal(Payload{Box: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher that drops everything, used when no broker is configured.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(logic.Event) error { return nil }

// PublishSystem drops the event.
func (Discard) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }

// IsConnected always reports false.
func (Discard) IsConnected() bool { return false }
