//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "irrigation-controller"

// RealController requests lines from an actual Linux GPIO character device.
type RealController struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// NewRealController opens the named GPIO chip (typically "gpiochip0").
func NewRealController(chipName string) (*RealController, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealController{chip: chip}, nil
}

// Watch requests pin as an edge-watched input.
func (c *RealController) Watch(pin int, cfg InputConfig, handler func()) error {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }),
	}

	switch cfg.Pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}

	switch cfg.Edge {
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	default:
		opts = append(opts, gpiocdev.WithBothEdges)
	}

	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("request input pin %d (%s edge): %w", pin, cfg.Edge, err)
	}
	c.track(line)
	return nil
}

// Output requests pin as an output, initially low.
func (c *RealController) Output(pin int) (Output, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	c.track(line)
	return &realOutput{line: line}, nil
}

func (c *RealController) track(line *gpiocdev.Line) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Close releases GPIO resources.
// Reconfigures every line to input with pull-down (matching Pi boot defaults)
// before closing, which also de-energizes any relay output.
func (c *RealController) Close() error {
	c.mu.Lock()
	lines := c.lines
	c.lines = nil
	c.mu.Unlock()

	var errs []error
	for _, line := range lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", line.Offset(), err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type realOutput struct {
	line *gpiocdev.Line
}

func (o *realOutput) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.line.Offset(), err)
	}
	return nil
}
