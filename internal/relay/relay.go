// Package relay drives a power relay output and accounts for how long and how
// often it has been energized.
package relay

import (
	"fmt"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/gpio"
)

// activation is the optional "on since" timestamp. The zero value means off.
type activation struct {
	at    uint32
	valid bool
}

// Relay is a single relay on an output pin.
// Not safe for concurrent use; it belongs to the main loop.
type Relay struct {
	pin   int
	clock clock.Clock
	out   gpio.Output

	since           activation
	lastToggleAt    uint32
	totalOnCount    uint64
	totalOnDuration uint64
}

// New creates a Relay for pin. It stays off and unattached until Attach.
func New(pin int, clk clock.Clock) *Relay {
	return &Relay{pin: pin, clock: clk}
}

// Pin returns the BCM pin number.
func (r *Relay) Pin() int {
	return r.pin
}

// Attach requests the pin as an output, initially de-energized.
func (r *Relay) Attach(ctrl gpio.Controller) error {
	out, err := ctrl.Output(r.pin)
	if err != nil {
		return err
	}
	if err := out.Set(false); err != nil {
		return fmt.Errorf("relay pin %d: %w", r.pin, err)
	}
	r.out = out
	return nil
}

// Activate energizes the relay. No-op if already on.
func (r *Relay) Activate() error {
	if r.IsOn() {
		return nil
	}
	if err := r.drive(true); err != nil {
		return err
	}
	now := r.clock.Millis()
	r.since = activation{at: now, valid: true}
	r.lastToggleAt = now
	r.totalOnCount++
	return nil
}

// Deactivate de-energizes the relay and folds the elapsed on-time into the
// lifetime total. No-op if already off.
func (r *Relay) Deactivate() error {
	if !r.IsOn() {
		return nil
	}
	if err := r.drive(false); err != nil {
		return err
	}
	now := r.clock.Millis()
	r.totalOnDuration += uint64(clock.Elapsed(now, r.since.at))
	r.since = activation{}
	r.lastToggleAt = now
	return nil
}

// On is an alias for Activate.
func (r *Relay) On() error { return r.Activate() }

// Off is an alias for Deactivate.
func (r *Relay) Off() error { return r.Deactivate() }

func (r *Relay) drive(high bool) error {
	if r.out == nil {
		return nil
	}
	if err := r.out.Set(high); err != nil {
		return fmt.Errorf("relay pin %d: %w", r.pin, err)
	}
	return nil
}

// IsOn reports whether an activation is currently recorded.
func (r *Relay) IsOn() bool {
	return r.since.valid
}

// CurrentOnDuration returns milliseconds since activation, or zero when off.
func (r *Relay) CurrentOnDuration() uint32 {
	if !r.since.valid {
		return 0
	}
	return clock.Elapsed(r.clock.Millis(), r.since.at)
}

// TotalOnDuration returns lifetime on-time in milliseconds, including the
// current activation if the relay is on.
func (r *Relay) TotalOnDuration() uint64 {
	return r.totalOnDuration + uint64(r.CurrentOnDuration())
}

// TotalOnCount returns the number of off-to-on transitions.
func (r *Relay) TotalOnCount() uint64 {
	return r.totalOnCount
}

// LastToggleAt returns the clock reading of the most recent state change.
func (r *Relay) LastToggleAt() uint32 {
	return r.lastToggleAt
}
