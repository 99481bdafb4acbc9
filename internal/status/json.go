package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Flow          FlowJSON     `json:"flow"`
	Relay         RelayJSON    `json:"relay"`
	Button        ButtonJSON   `json:"button"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Recent        []EventJSON  `json:"recent_events,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// FlowJSON is the JSON representation of the flow sensor.
type FlowJSON struct {
	State             string  `json:"state"`
	Flowing           bool    `json:"flowing"`
	LastPulses        uint32  `json:"last_pulses"`
	RatePerMinute     float64 `json:"rate_per_minute"`
	CurrentPulses     uint64  `json:"current_pulses"`
	CurrentDurationMs uint64  `json:"current_duration_ms"`
	TotalPulses       uint64  `json:"total_pulses"`
	TotalDurationMs   uint64  `json:"total_duration_ms"`
	TotalRuns         uint64  `json:"total_runs"`
	SignificantRuns   uint64  `json:"significant_runs"`
	TotalVolume       float64 `json:"total_volume"`
}

// RelayJSON is the JSON representation of the pump relay.
type RelayJSON struct {
	State       string `json:"state"`
	OnCount     uint64 `json:"on_count"`
	CurrentOnMs uint32 `json:"current_on_ms"`
	TotalOnMs   uint64 `json:"total_on_ms"`
}

// ButtonJSON is the JSON representation of the button.
type ButtonJSON struct {
	LastPressedAt uint32 `json:"last_pressed_at_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	FlowStart int `json:"flow_start"`
	FlowStop  int `json:"flow_stop"`
	RelayOn   int `json:"relay_on"`
	RelayOff  int `json:"relay_off"`
	Presses   int `json:"button_press"`
}

// EventJSON is one recent transition.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
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
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	DryRunMs    int64  `json:"dry_run_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Policy      string `json:"flow_policy"`
	Threshold   uint32 `json:"flow_threshold"`
	PinButton   int    `json:"pin_button"`
	PinFlow     int    `json:"pin_flow"`
	PinRelay    int    `json:"pin_relay"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	flowState := string(snap.Flow.State)
	if flowState == "" {
		flowState = "UNKNOWN"
	}

	return StatusInner{
		Ready:         snap.Baselined,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Flow: FlowJSON{
			State:             flowState,
			Flowing:           snap.Flow.Flowing,
			LastPulses:        snap.Flow.LastPulses,
			RatePerMinute:     snap.Flow.RatePerMinute,
			CurrentPulses:     snap.Flow.CurrentPulses,
			CurrentDurationMs: snap.Flow.CurrentDurationMs,
			TotalPulses:       snap.Flow.Totals.Pulses,
			TotalDurationMs:   snap.Flow.Totals.DurationMillis,
			TotalRuns:         snap.Flow.Totals.Runs,
			SignificantRuns:   snap.Flow.Totals.SignificantRuns,
			TotalVolume:       snap.Flow.TotalVolume,
		},
		Relay: RelayJSON{
			State:       onOff(snap.Relay.On),
			OnCount:     snap.Relay.OnCount,
			CurrentOnMs: snap.Relay.CurrentOnMs,
			TotalOnMs:   snap.Relay.TotalOnMs,
		},
		Button: ButtonJSON{LastPressedAt: snap.Button.LastPressedAt},
		MQTT:   MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			FlowStart: snap.Counts.FlowStart,
			FlowStop:  snap.Counts.FlowStop,
			RelayOn:   snap.Counts.RelayOn,
			RelayOff:  snap.Counts.RelayOff,
			Presses:   snap.Counts.Presses,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			DryRunMs:    snap.Config.DryRunMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Policy:      snap.Config.Policy,
			Threshold:   snap.Config.Threshold,
			PinButton:   snap.Config.PinButton,
			PinFlow:     snap.Config.PinFlow,
			PinRelay:    snap.Config.PinRelay,
		},
	}
}

func buildRecent(snap Snapshot, inner *StatusInner) {
	for _, e := range snap.Recent {
		inner.Recent = append(inner.Recent, EventJSON{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(e.Type),
		})
	}
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
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildRecent(snap, &inner)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
