package logic

import "time"

// Detector turns successive samples into transition events.
// Inputs arrive already debounced by the measurement components, so after
// the baseline is set every change is reported on the tick it is seen.
type Detector struct {
	settle        time.Duration
	flow          ChannelState
	relay         ChannelState
	baselined     bool
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDetector creates a detector that waits for settle of unchanged input
// before establishing a baseline. The startTime is used for calculating
// uptime in heartbeat events.
func NewDetector(settle time.Duration, startTime time.Time) *Detector {
	return &Detector{
		settle:        settle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes a new input sample and returns any events that should be emitted.
// Events are only returned after baseline is established.
func (d *Detector) Process(input Input) []Event {
	flowTransition := d.processChannel(&d.flow, boolToState(input.Flowing), input.Time)
	relayTransition := d.processChannel(&d.relay, boolToState(input.RelayOn), input.Time)

	if !d.baselined {
		if d.flow.Baselined && d.relay.Baselined {
			d.baselined = true
		}
		return nil // No events until baseline established
	}

	var events []Event

	// A press is reported before the relay change it usually causes.
	for i := 0; i < input.Presses; i++ {
		events = append(events, d.event(input.Time, EventButtonPress))
	}

	if relayTransition {
		if d.relay.Stable == StateOn {
			events = append(events, d.event(input.Time, EventRelayOn))
		} else {
			events = append(events, d.event(input.Time, EventRelayOff))
		}
	}

	if flowTransition {
		if d.flow.Stable == StateOn {
			events = append(events, d.event(input.Time, EventFlowStart))
		} else {
			events = append(events, d.event(input.Time, EventFlowStop))
		}
	}

	for _, e := range events {
		switch e.Type {
		case EventFlowStart:
			d.eventCounts.FlowStart++
		case EventFlowStop:
			d.eventCounts.FlowStop++
		case EventRelayOn:
			d.eventCounts.RelayOn++
		case EventRelayOff:
			d.eventCounts.RelayOff++
		case EventButtonPress:
			d.eventCounts.Presses++
		}
	}

	return events
}

func (d *Detector) event(t time.Time, typ EventType) Event {
	return Event{
		Timestamp:  t,
		Type:       typ,
		FlowState:  d.flow.Stable,
		RelayState: d.relay.Stable,
	}
}

// processChannel reports whether the channel's stable state changed.
func (d *Detector) processChannel(ch *ChannelState, newState State, now time.Time) bool {
	if !ch.Baselined {
		if ch.Pending == "" || ch.Pending != newState {
			// Start or restart observation
			ch.Pending = newState
			ch.PendingSince = now
		}
		if now.Sub(ch.PendingSince) >= d.settle {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return false
	}

	if newState == ch.Stable {
		return false
	}
	ch.Stable = newState
	return true
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the current stable states.
func (d *Detector) CurrentState() (flow State, relay State) {
	return d.flow.Stable, d.relay.Stable
}

// EventCountsSnapshot returns a copy of the event counts.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
