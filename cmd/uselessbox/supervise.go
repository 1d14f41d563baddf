package main

import (
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/mqtt"
	"github.com/sweeney/uselessbox/internal/status"
	"github.com/sweeney/uselessbox/internal/touch"
)

// watchdogTick is how often the supervisor samples the restart gesture.
const watchdogTick = 10 * time.Millisecond

// supervisor owns the main goroutine once the tasks are running: it watches
// for the restart gesture, sends heartbeats and handles signals.
type supervisor struct {
	log        *slog.Logger
	sensor     touch.Sensor
	switches   gpio.Reader
	tracker    *status.Tracker
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	watchdog   *logic.RestartDetector // nil when disabled for the mode
	heartbeat  *logic.Heartbeat
	now        func() time.Time
}

// loopResult is how the supervisor loop ended.
type loopResult struct {
	restart bool
	reason  string
}

func (s *supervisor) runLoop(tick <-chan time.Time, sig <-chan os.Signal, restart <-chan string) loopResult {
	for {
		select {
		case sg := <-sig:
			s.log.Info("shutting down", "signal", sg.String())
			signalName := "UNKNOWN"
			if sg == syscall.SIGINT {
				signalName = "SIGINT"
			} else if sg == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			s.publishStatus("SHUTDOWN", signalName, true)
			return loopResult{reason: signalName}

		case reason := <-restart:
			s.publishStatus("RESTART", reason, true)
			return loopResult{restart: true, reason: reason}

		case <-tick:
			t := s.now()

			if s.watchdog != nil {
				if raw, ok := s.readRaw(); ok && s.watchdog.Process(raw, s.tracker.Thresholds(), t) {
					s.log.Warn("all channels held, restarting")
					s.publishStatus("RESTART", "WATCHDOG", true)
					return loopResult{restart: true, reason: "WATCHDOG"}
				}
			}

			if hb := s.heartbeat.Check(t); hb != nil {
				s.log.Debug("heartbeat", "uptime", hb.Uptime)
				if net := readNetworkInfo(); net != nil {
					s.tracker.SetNetwork(net)
				}
				s.publishStatus("HEARTBEAT", "", false)
			}

			if s.mqttStatus != nil {
				s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
			}
		}
	}
}

// readRaw samples all four channels. A failed read skips the sample.
func (s *supervisor) readRaw() ([logic.NumChannels]int, bool) {
	var raw [logic.NumChannels]int
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		v, err := s.sensor.Read(c)
		if err != nil {
			s.log.Debug("watchdog read failed", "channel", int(c), "err", err)
			return raw, false
		}
		raw[c] = v
		s.tracker.SetReading(c, v)
	}
	return raw, true
}

func (s *supervisor) publishStatus(event, reason string, retained bool) {
	if s.mqttStatus != nil {
		s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
	}
	var switches *logic.SwitchMap
	if m, err := s.switches.Read(); err == nil {
		switches = &m
	}
	snap := s.tracker.Snapshot()
	e := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, switches, event, reason),
	}
	if err := s.publisher.PublishSystem(e); err != nil {
		s.log.Warn("system event publish failed", "event", event, "err", err)
		return
	}
	s.log.Info("published system event", "event", event)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	st := os.Getenv(envNetworkStatus)
	if st == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     st,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
