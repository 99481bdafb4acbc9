package status

import (
	"github.com/sweeney/irrigation-controller/internal/button"
	"github.com/sweeney/irrigation-controller/internal/flow"
	"github.com/sweeney/irrigation-controller/internal/relay"
)

// Readings are the component accessor values copied out of the main loop.
type Readings struct {
	Flow   FlowReading
	Relay  RelayReading
	Button ButtonReading
}

// FlowReading mirrors flow.Sensor accessors.
type FlowReading struct {
	State             flow.State
	Flowing           bool
	LastPulses        uint32
	RatePerMinute     float64
	CurrentPulses     uint64
	CurrentDurationMs uint64
	Totals            flow.Totals
	TotalVolume       float64
}

// RelayReading mirrors relay.Relay accessors.
type RelayReading struct {
	On           bool
	OnCount      uint64
	CurrentOnMs  uint32
	TotalOnMs    uint64
	LastToggleAt uint32
}

// ButtonReading mirrors button.Button accessors.
type ButtonReading struct {
	LastPressedAt uint32
}

// ReadFlow captures s. Main loop only.
func ReadFlow(s *flow.Sensor) FlowReading {
	return FlowReading{
		State:             s.State(),
		Flowing:           s.IsFlowing(),
		LastPulses:        s.LastPulses(),
		RatePerMinute:     s.FlowRate(),
		CurrentPulses:     s.CurrentPulses(),
		CurrentDurationMs: s.CurrentDurationMillis(),
		Totals:            s.Totals(),
		TotalVolume:       s.TotalVolume(),
	}
}

// ReadRelay captures r. Main loop only.
func ReadRelay(r *relay.Relay) RelayReading {
	return RelayReading{
		On:           r.IsOn(),
		OnCount:      r.TotalOnCount(),
		CurrentOnMs:  r.CurrentOnDuration(),
		TotalOnMs:    r.TotalOnDuration(),
		LastToggleAt: r.LastToggleAt(),
	}
}

// ReadButton captures b.
func ReadButton(b *button.Button) ButtonReading {
	return ButtonReading{LastPressedAt: b.LastPressedAt()}
}
