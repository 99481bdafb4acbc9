package main

import (
	"fmt"

	"github.com/sweeney/irrigation-controller/internal/button"
	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/flow"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/relay"
	"github.com/sweeney/irrigation-controller/internal/status"
)

// device bundles the measurement components wired to one GPIO controller.
// Everything except the edge handlers runs on the main loop goroutine.
type device struct {
	clock  clock.Clock
	button *button.Button
	flow   *flow.Sensor
	relay  *relay.Relay

	lastService uint32
}

func newDevice(ctrl gpio.Controller, clk clock.Clock, cfg config.Config) (*device, error) {
	d := &device{
		clock:       clk,
		button:      button.New(cfg.Pins.Button, clk),
		flow:        flow.New(cfg.Pins.Flow, flow.WithPolicy(cfg.FlowPolicy()), flow.WithThreshold(cfg.Flow.Threshold)),
		relay:       relay.New(cfg.Pins.Relay, clk),
		lastService: clk.Millis(),
	}

	// Relay first so the pump is driven low before any input can toggle it.
	if err := d.relay.Attach(ctrl); err != nil {
		return nil, fmt.Errorf("attach relay: %w", err)
	}
	if err := d.button.Attach(ctrl); err != nil {
		return nil, fmt.Errorf("attach button: %w", err)
	}
	if err := d.flow.Attach(ctrl); err != nil {
		return nil, fmt.Errorf("attach flow sensor: %w", err)
	}
	return d, nil
}

// serviceFlow drains the pulses counted since the previous call.
func (d *device) serviceFlow() uint32 {
	now := d.clock.Millis()
	period := clock.Elapsed(now, d.lastService)
	d.lastService = now
	return d.flow.Service(period)
}

// toggleRelay flips the pump relay.
func (d *device) toggleRelay() error {
	if d.relay.IsOn() {
		return d.relay.Deactivate()
	}
	return d.relay.Activate()
}

func (d *device) readings() status.Readings {
	return status.Readings{
		Flow:   status.ReadFlow(d.flow),
		Relay:  status.ReadRelay(d.relay),
		Button: status.ReadButton(d.button),
	}
}
