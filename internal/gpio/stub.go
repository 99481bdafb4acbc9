//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealController is not available on non-Linux platforms.
type RealController struct{}

// NewRealController returns an error on non-Linux platforms.
func NewRealController(chipName string) (*RealController, error) {
	return nil, errUnsupported
}

// Watch is not implemented on non-Linux platforms.
func (c *RealController) Watch(pin int, cfg InputConfig, handler func()) error {
	return errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (c *RealController) Output(pin int) (Output, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *RealController) Close() error {
	return nil
}
