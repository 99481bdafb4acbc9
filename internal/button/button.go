// Package button debounces a push button wired to an edge-watched input.
//
// The edge handler (ISR) runs on the GPIO event goroutine and only records a
// pending press; Read drains it from the main loop and runs the press callback
// there, outside the critical section.
package button

import (
	"sync"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/gpio"
)

// DebounceWindow is the minimum spacing, in milliseconds, between two
// accepted presses. Edges closer than this are contact bounce.
const DebounceWindow uint32 = 50

// Button tracks debounced presses on a single pin.
type Button struct {
	pin   int
	clock clock.Clock

	// mu is the critical section shared by ISR and the main loop.
	mu            sync.Mutex
	pressed       bool
	accepted      bool // at least one press has been accepted
	lastPressedAt uint32
	onPressed     func()
}

// New creates a Button for pin using clk for press timestamps.
func New(pin int, clk clock.Clock) *Button {
	return &Button{pin: pin, clock: clk}
}

// Pin returns the BCM pin number.
func (b *Button) Pin() int {
	return b.pin
}

// Attach requests the pin as a pulled-up input and routes every level
// change to ISR.
func (b *Button) Attach(ctrl gpio.Controller) error {
	return ctrl.Watch(b.pin, gpio.InputConfig{Pull: gpio.PullUp, Edge: gpio.EdgeBoth}, b.ISR)
}

// OnPressed registers cb to run from Read whenever a press is consumed.
// A nil cb disables the callback.
func (b *Button) OnPressed(cb func()) {
	b.mu.Lock()
	b.onPressed = cb
	b.mu.Unlock()
}

// ISR is the edge handler. It accepts the edge as a press only if more than
// DebounceWindow has elapsed since the last accepted press.
func (b *Button) ISR() {
	now := b.clock.Millis()

	b.mu.Lock()
	if !b.accepted || clock.Elapsed(now, b.lastPressedAt) > DebounceWindow {
		b.accepted = true
		b.lastPressedAt = now
		b.pressed = true
	}
	b.mu.Unlock()
}

// Read consumes a pending press. It reports whether one was pending and, if
// so, invokes the registered callback after releasing the lock.
func (b *Button) Read() bool {
	b.mu.Lock()
	pressed := b.pressed
	b.pressed = false
	cb := b.onPressed
	b.mu.Unlock()

	if pressed && cb != nil {
		cb()
	}
	return pressed
}

// LastPressedAt returns the clock reading of the last accepted press.
func (b *Button) LastPressedAt() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPressedAt
}
