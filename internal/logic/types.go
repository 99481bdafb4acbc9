// Package logic contains pure controller logic: transition detection over
// the measurement components' state and the dry-run pump guard.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a monitored channel.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// EventType represents a published transition.
type EventType string

const (
	EventFlowStart   EventType = "FLOW_START"
	EventFlowStop    EventType = "FLOW_STOP"
	EventRelayOn     EventType = "RELAY_ON"
	EventRelayOff    EventType = "RELAY_OFF"
	EventButtonPress EventType = "BUTTON_PRESS"
)

// Event represents a transition to be published.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	FlowState  State
	RelayState State
}

// ChannelState tracks settle state for a single channel.
type ChannelState struct {
	// Current stable state
	Stable State
	// State being observed before baseline
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input is a single main-loop sample of component state.
type Input struct {
	Flowing bool // flow sensor reports significant flow
	RelayOn bool
	Presses int // button presses consumed this tick
	Time    time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	FlowStart int
	FlowStop  int
	RelayOn   int
	RelayOff  int
	Presses   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
