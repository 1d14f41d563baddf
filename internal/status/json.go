package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/uselessbox/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Mode          string        `json:"mode"`
	Profile       string        `json:"profile"`
	Watchdog      bool          `json:"watchdog"`
	Switches      string        `json:"switches,omitempty"`
	Channels      []ChannelJSON `json:"channels"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is one channel's live and calibrated values.
type ChannelJSON struct {
	Channel   int     `json:"channel"`
	Pressed   *bool   `json:"pressed,omitempty"`
	Touch     uint16  `json:"touch"`
	Raw       int     `json:"raw"`
	Filtered  float64 `json:"filtered"`
	Min       uint16  `json:"min"`
	Max       uint16  `json:"max"`
	Threshold uint16  `json:"threshold"`
	Pushes    int     `json:"pushes"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Store       string `json:"store"`
}

func buildInner(snap Snapshot, switches *logic.SwitchMap) StatusInner {
	mode := snap.Mode
	if mode == "" {
		mode = "UNKNOWN"
	}

	inner := StatusInner{
		Mode:          mode,
		Profile:       snap.Profile,
		Watchdog:      snap.Watchdog,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Store:       snap.Config.Store,
		},
	}
	if switches != nil {
		inner.Switches = switches.String()
	}

	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		ch := ChannelJSON{
			Channel:   int(c),
			Touch:     snap.Touch[c],
			Raw:       snap.Raw[c],
			Filtered:  snap.Filtered[c],
			Min:       snap.Calibration[c].Touched,
			Max:       snap.Calibration[c].Untouched,
			Threshold: snap.Calibration[c].Threshold,
			Pushes:    snap.Pushes[c],
		}
		if switches != nil {
			pressed := switches.Pressed(c)
			ch.Pressed = &pressed
		}
		inner.Channels = append(inner.Channels, ch)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
// switches is the live switch map, nil if it could not be read.
func FormatJSON(snap Snapshot, switches *logic.SwitchMap) []byte {
	inner := buildInner(snap, switches)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, switches *logic.SwitchMap, event, reason string) []byte {
	inner := buildInner(snap, switches)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
