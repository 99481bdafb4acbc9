// Package flow classifies pulses from a flow meter into runs and keeps
// volumetric totals.
//
// OnPulse is the edge handler and only bumps an atomic counter. Service,
// called from the main loop with the elapsed period, drains that counter and
// advances the run state machine:
//
//	Idle --pulses>0--> Accumulating --run pulses >= threshold--> Detected
//	any  --zero pulses in a period--> Idle
package flow

import (
	"sync/atomic"

	"github.com/sweeney/irrigation-controller/internal/gpio"
)

const (
	// DefaultDetectionThreshold is the run pulse count at which flow is
	// treated as real rather than sensor noise.
	DefaultDetectionThreshold uint32 = 20

	// PulsesPerVolumeUnit converts pulses to gallons.
	PulsesPerVolumeUnit = 1380

	millisPerMinute = 60000
)

// Option configures a Sensor.
type Option func(*Sensor)

// WithPolicy selects the accounting policy. Default ExcludeNoise.
func WithPolicy(p Policy) Option {
	return func(s *Sensor) { s.policy = p }
}

// WithThreshold sets the detection threshold in pulses. Zero is ignored.
func WithThreshold(n uint32) Option {
	return func(s *Sensor) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// Sensor is a pulse-output flow meter on one pin.
// Only OnPulse may be called concurrently with the other methods.
type Sensor struct {
	pin       int
	policy    Policy
	threshold uint32

	pulses atomic.Uint32

	run          Run
	totals       Totals
	lastPulses   uint32
	lastPeriodMs uint32
}

// New creates a Sensor for pin.
func New(pin int, opts ...Option) *Sensor {
	s := &Sensor{
		pin:       pin,
		threshold: DefaultDetectionThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pin returns the BCM pin number.
func (s *Sensor) Pin() int { return s.pin }

// Policy returns the configured accounting policy.
func (s *Sensor) Policy() Policy { return s.policy }

// Threshold returns the detection threshold in pulses.
func (s *Sensor) Threshold() uint32 { return s.threshold }

// Attach requests the pin as a pulled-up input and counts falling edges.
func (s *Sensor) Attach(ctrl gpio.Controller) error {
	return ctrl.Watch(s.pin, gpio.InputConfig{Pull: gpio.PullUp, Edge: gpio.EdgeFalling}, s.OnPulse)
}

// OnPulse records one pulse. Safe to call from the edge handler goroutine.
func (s *Sensor) OnPulse() {
	s.pulses.Add(1)
}

// Service drains the pulses seen since the previous call and updates the run
// and totals. periodMillis is the time since the previous call. The returned
// count may include noise; use IsFlowing to decide whether water is moving.
func (s *Sensor) Service(periodMillis uint32) uint32 {
	n := s.pulses.Swap(0)
	s.lastPulses = n
	s.lastPeriodMs = periodMillis

	if n == 0 {
		s.run = Run{}
		return 0
	}

	starting := s.run.Pulses == 0
	s.run.Pulses += uint64(n)
	s.run.DurationMillis += uint64(periodMillis)
	crossed := s.run.Pulses >= uint64(s.threshold)

	switch s.policy {
	case IncludeNoise:
		s.totals.Pulses += uint64(n)
		s.totals.DurationMillis += uint64(periodMillis)
		if starting {
			s.totals.Runs++
		}
		if crossed && !s.run.Detected {
			s.run.Detected = true
			s.totals.SignificantRuns++
		}

	default:
		if !crossed {
			break
		}
		if !s.run.Detected {
			// First crossing: fold the whole run so far into the totals.
			s.run.Detected = true
			s.totals.Runs++
			s.totals.SignificantRuns++
			s.totals.Pulses += s.run.Pulses
			s.totals.DurationMillis += s.run.DurationMillis
		} else {
			s.totals.Pulses += uint64(n)
			s.totals.DurationMillis += uint64(periodMillis)
		}
	}

	return n
}

// Read is an alias for Service.
func (s *Sensor) Read(periodMillis uint32) uint32 {
	return s.Service(periodMillis)
}

// State returns the run classification.
func (s *Sensor) State() State {
	switch {
	case s.run.Detected:
		return StateDetected
	case s.run.Pulses > 0:
		return StateAccumulating
	}
	return StateIdle
}

// IsFlowing reports whether the current run has reached the threshold.
func (s *Sensor) IsFlowing() bool {
	return s.run.Detected
}

// Current returns the run in progress.
func (s *Sensor) Current() Run { return s.run }

// CurrentPulses returns the pulses in the current run.
func (s *Sensor) CurrentPulses() uint64 { return s.run.Pulses }

// CurrentDurationMillis returns the time spent in the current run.
func (s *Sensor) CurrentDurationMillis() uint64 { return s.run.DurationMillis }

// Totals returns the lifetime counters.
func (s *Sensor) Totals() Totals { return s.totals }

// TotalPulses returns lifetime counted pulses.
func (s *Sensor) TotalPulses() uint64 { return s.totals.Pulses }

// TotalDurationMillis returns lifetime counted flow time.
func (s *Sensor) TotalDurationMillis() uint64 { return s.totals.DurationMillis }

// TotalRuns returns the lifetime number of counted runs.
func (s *Sensor) TotalRuns() uint64 { return s.totals.Runs }

// TotalSignificantRuns returns the lifetime number of runs that reached the
// threshold.
func (s *Sensor) TotalSignificantRuns() uint64 { return s.totals.SignificantRuns }

// TotalVolume returns lifetime counted volume in gallons.
func (s *Sensor) TotalVolume() float64 { return PulsesToVolume(s.totals.Pulses) }

// LastPulses returns the pulse count drained by the most recent Service.
func (s *Sensor) LastPulses() uint32 { return s.lastPulses }

// FlowRate returns gallons per minute over the most recent period, or zero
// if that period was zero length.
func (s *Sensor) FlowRate() float64 {
	if s.lastPeriodMs == 0 {
		return 0
	}
	return PulsesToVolume(uint64(s.lastPulses)) * (millisPerMinute / float64(s.lastPeriodMs))
}

// PulsesToVolume converts a pulse count to gallons.
func PulsesToVolume(n uint64) float64 {
	return float64(n) / PulsesPerVolumeUnit
}
