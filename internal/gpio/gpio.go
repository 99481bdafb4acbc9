// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device and delivers
// edge events on a kernel watcher goroutine, which plays the role of
// interrupt context for the components that register handlers.
// The fake implementation allows testing without hardware.
package gpio

// Edge selects which input transitions invoke a watch handler.
type Edge int

const (
	EdgeBoth Edge = iota
	EdgeFalling
	EdgeRising
)

func (e Edge) String() string {
	switch e {
	case EdgeBoth:
		return "both"
	case EdgeFalling:
		return "falling"
	case EdgeRising:
		return "rising"
	}
	return "unknown"
}

// Pull selects the line bias for an input.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// InputConfig describes how an input line is requested.
type InputConfig struct {
	Pull Pull
	Edge Edge
}

// Controller hands out watched input lines and output lines.
type Controller interface {
	// Watch requests pin as an input and invokes handler on every matching
	// edge. The handler runs on the controller's event goroutine and must be
	// short, non-blocking and allocation-free.
	Watch(pin int, cfg InputConfig, handler func()) error

	// Output requests pin as an output driven low.
	Output(pin int) (Output, error)

	// Close releases all lines.
	Close() error
}

// Output drives a single output line.
type Output interface {
	Set(high bool) error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinButton = 17
	DefaultPinFlow   = 27
	DefaultPinRelay  = 22
)
