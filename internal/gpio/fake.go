package gpio

import (
	"fmt"
	"sync"
)

// FakeController is a test double that records line requests and lets tests
// fire edges on watched inputs.
type FakeController struct {
	mu       sync.Mutex
	handlers map[int]func()
	configs  map[int]InputConfig
	outputs  map[int]*FakeOutput

	// WatchError, if set, will be returned by Watch.
	WatchError error

	// OutputError, if set, will be returned by Output.
	OutputError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeController creates an empty FakeController.
func NewFakeController() *FakeController {
	return &FakeController{
		handlers: make(map[int]func()),
		configs:  make(map[int]InputConfig),
		outputs:  make(map[int]*FakeOutput),
	}
}

// Watch records the handler for pin.
func (f *FakeController) Watch(pin int, cfg InputConfig, handler func()) error {
	if f.WatchError != nil {
		return f.WatchError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	f.handlers[pin] = handler
	f.configs[pin] = cfg
	return nil
}

// Output returns a FakeOutput for pin, initially low.
func (f *FakeController) Output(pin int) (Output, error) {
	if f.OutputError != nil {
		return nil, f.OutputError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outputs[pin]; ok {
		return nil, fmt.Errorf("pin %d already requested", pin)
	}
	out := &FakeOutput{}
	f.outputs[pin] = out
	return out, nil
}

// Close marks the controller as closed.
func (f *FakeController) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Fire invokes the handler watching pin once, as an edge would.
// Reports whether a handler was registered.
func (f *FakeController) Fire(pin int) bool {
	f.mu.Lock()
	h := f.handlers[pin]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

// FireN fires n edges on pin.
func (f *FakeController) FireN(pin, n int) {
	for i := 0; i < n; i++ {
		f.Fire(pin)
	}
}

// InputConfig returns the configuration pin was watched with.
func (f *FakeController) InputConfig(pin int) (InputConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[pin]
	return cfg, ok
}

// FakeOutput returns the output requested for pin, or nil.
func (f *FakeController) FakeOutput(pin int) *FakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[pin]
}

// FakeOutput records writes to an output line.
type FakeOutput struct {
	mu     sync.Mutex
	high   bool
	writes []bool

	// SetError, if set, will be returned by Set and the level is not changed.
	SetError error
}

// Set records the new level.
func (o *FakeOutput) Set(high bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.SetError != nil {
		return o.SetError
	}
	o.high = high
	o.writes = append(o.writes, high)
	return nil
}

// High reports the current level.
func (o *FakeOutput) High() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.high
}

// Writes returns every level written so far.
func (o *FakeOutput) Writes() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.writes...)
}
