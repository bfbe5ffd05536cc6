package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/tinywatch/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"hex": func(v uint64) string {
		return fmt.Sprintf("0x%X", v)
	},
	"ms": func(d time.Duration) int64 {
		return d.Milliseconds()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>tinywatch</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.awake { color: green; font-weight: bold; }
.busy { color: orange; font-weight: bold; }
.pressed { color: green; font-weight: bold; }
.released { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>tinywatch</h1>

<h2>Power</h2>
<table>
{{$state := stateOrUnknown (printf "%s" .State)}}<tr><th>State</th><td id="power-state" class="{{if eq $state "AWAKE"}}awake{{else}}busy{{end}}">{{$state}}</td></tr>
<tr><th>Idle</th><td>{{ms .Idle}}ms of {{.Config.IdleMs}}ms</td></tr>
{{with .Wake}}<tr><th>Wake cause</th><td id="wake-cause">{{.Cause}}</td></tr>
{{if .Ext1Mask}}<tr><th>EXT1 mask</th><td>{{hex .Ext1Mask}}{{range .Pins}} {{.}}{{end}}</td></tr>{{end}}{{end}}
</table>

<h2>Buttons</h2>
<table>
{{range .Buttons}}<tr><th>{{.Name}} (GPIO{{.Pin}})</th><td class="{{if .Pressed}}pressed{{else}}released{{end}}">{{if .Pressed}}pressed{{else}}released{{end}}</td></tr>
{{end}}</table>

{{with .Accel}}<h2>Accelerometer</h2>
<table>
<tr><th>X / Y / Z</th><td>{{.X}} / {{.Y}} / {{.Z}} µg</td></tr>
<tr><th>Magnitude</th><td>{{printf "%.3f" .Magnitude}} g{{if .Halted}} (halted){{end}}</td></tr>
</table>{{end}}

{{with .HeartRate}}<h2>Heart Rate</h2>
<table>
<tr><th>HR ADC</th><td id="hr-adc">{{.Raw}}</td></tr>
</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Presses</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Sleep attempts</th><td>{{.Counts.SleepAttempts}}</td></tr>
<tr><th>Sleep commits</th><td>{{.Counts.SleepCommits}}</td></tr>
<tr><th>Sleep aborts</th><td>{{.Counts.SleepAborts}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Boot ID</th><td>{{.BootID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Quiet window</th><td>{{.Config.QuietMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
