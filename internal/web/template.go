package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/status"
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
	"millis": func(ms uint64) string {
		return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
	},
	"u64": func(v uint32) uint64 {
		return uint64(v)
	},
	"volume": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Irrigation Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigation Controller</h1>

<h2>Pump</h2>
<table>
<tr><th>Relay</th><td id="relay-state" class="{{if .Relay.On}}on{{else}}off{{end}}">{{if .Relay.On}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>On for</th><td>{{millis (u64 .Relay.CurrentOnMs)}}</td></tr>
<tr><th>Total on</th><td>{{millis .Relay.TotalOnMs}} ({{.Relay.OnCount}} starts)</td></tr>
</table>

<h2>Flow</h2>
<table>
<tr><th>State</th><td id="flow-state" class="{{if .Flow.Flowing}}on{{else}}off{{end}}">{{if .Flow.State}}{{.Flow.State}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Rate</th><td>{{volume .Flow.RatePerMinute}} gal/min</td></tr>
<tr><th>Current run</th><td>{{.Flow.CurrentPulses}} pulses, {{millis .Flow.CurrentDurationMs}}</td></tr>
<tr><th>Total</th><td>{{volume .Flow.TotalVolume}} gal over {{millis .Flow.Totals.DurationMillis}}</td></tr>
<tr><th>Runs</th><td>{{.Flow.Totals.Runs}} ({{.Flow.Totals.SignificantRuns}} significant)</td></tr>
<tr><th>Ready</th><td>{{if .Baselined}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Flow start</th><td>{{.Counts.FlowStart}}</td></tr>
<tr><th>Flow stop</th><td>{{.Counts.FlowStop}}</td></tr>
<tr><th>Relay on</th><td>{{.Counts.RelayOn}}</td></tr>
<tr><th>Relay off</th><td>{{.Counts.RelayOff}}</td></tr>
<tr><th>Button</th><td>{{.Counts.Presses}}</td></tr>
</table>

{{if .Recent}}<h2>Recent Events</h2>
<table id="recent-events">
{{range .Recent}}<tr><th>{{.Timestamp.UTC.Format "15:04:05"}}</th><td>{{.Type}}</td></tr>
{{end}}</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Flow policy</th><td>{{.Config.Policy}} (threshold {{.Config.Threshold}})</td></tr>
<tr><th>Dry-run cutoff</th><td>{{if eq .Config.DryRunMs 0}}disabled{{else}}{{.Config.DryRunMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Newest transition first.
	recent := make([]logic.Event, 0, len(snap.Recent))
	for i := len(snap.Recent) - 1; i >= 0; i-- {
		recent = append(recent, snap.Recent[i])
	}
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Recent []logic.Event
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Recent:   recent,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
