package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Useless Box</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Useless Box</h1>

<h2>Mode</h2>
<table>
<tr><th>Mode</th><td>{{orUnknown .Mode}}</td></tr>
<tr><th>Profile</th><td>{{orUnknown .Profile}}</td></tr>
<tr><th>Watchdog</th><td>{{if .Watchdog}}on{{else}}off{{end}}</td></tr>
</table>

<h2>Channels</h2>
<table>
<tr><th>#</th><th>Switch</th><th>Touch</th><th>Raw</th><th>Min</th><th>Max</th><th>TH</th><th>Pushes</th></tr>
{{range .Channels}}<tr>
<td>{{.Channel}}</td>
<td class="{{.SwitchClass}}">{{.Switch}}</td>
<td class="{{if .Touch}}on{{else}}off{{end}}">{{.Touch}}</td>
<td>{{.Raw}}</td>
<td>{{.Min}}</td>
<td>{{.Max}}</td>
<td>{{.Threshold}}</td>
<td>{{.Pushes}}</td>
</tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>Calibration</th><td>{{.Config.Store}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type channelRow struct {
	Channel     int
	Switch      string
	SwitchClass string
	Touch       uint16
	Raw         int
	Min         uint16
	Max         uint16
	Threshold   uint16
	Pushes      int
}

func channelRows(snap status.Snapshot, switches *logic.SwitchMap) []channelRow {
	rows := make([]channelRow, 0, logic.NumChannels)
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		row := channelRow{
			Channel:     int(c),
			Switch:      "?",
			SwitchClass: "unknown",
			Touch:       snap.Touch[c],
			Raw:         snap.Raw[c],
			Min:         snap.Calibration[c].Touched,
			Max:         snap.Calibration[c].Untouched,
			Threshold:   snap.Calibration[c].Threshold,
			Pushes:      snap.Pushes[c],
		}
		if switches != nil {
			if switches.Pressed(c) {
				row.Switch, row.SwitchClass = "pressed", "on"
			} else {
				row.Switch, row.SwitchClass = "released", "off"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func renderHTML(w io.Writer, snap status.Snapshot, switches *logic.SwitchMap) error {
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Channels []channelRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Channels: channelRows(snap, switches),
	}
	return indexTmpl.Execute(w, data)
}
