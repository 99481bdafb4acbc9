// Package clock provides the free-running millisecond counter used for all
// timestamps in the controller. The counter is 32 bits wide and wraps roughly
// every 49.7 days; durations must always be taken with Elapsed.
package clock

import (
	"sync"
	"time"
)

// Clock reports a monotonically increasing millisecond count that wraps at 2^32.
type Clock interface {
	Millis() uint32
}

// Elapsed returns the milliseconds between since and now. Modular uint32
// subtraction keeps the result correct across a single wrap of the counter.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// System is a Clock backed by the Go monotonic clock.
type System struct {
	start time.Time
	base  uint32
}

// NewSystem returns a System clock that reads zero at the moment of creation.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// NewSystemAt returns a System clock that reads base at the moment of creation.
// Useful to exercise counter wrap on real hardware without waiting 49 days.
func NewSystemAt(base uint32) *System {
	return &System{start: time.Now(), base: base}
}

// Millis returns the milliseconds since creation, truncated to 32 bits.
func (s *System) Millis() uint32 {
	return s.base + uint32(time.Since(s.start).Milliseconds())
}

// Fake is a manually driven Clock for tests. Safe for concurrent use so a
// test goroutine can advance it while an edge handler reads it.
type Fake struct {
	mu  sync.Mutex
	now uint32
}

// NewFake returns a Fake clock reading now.
func NewFake(now uint32) *Fake {
	return &Fake{now: now}
}

// Millis returns the current fake time.
func (f *Fake) Millis() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to now.
func (f *Fake) Set(now uint32) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Advance moves the clock forward by d milliseconds, wrapping at 2^32.
func (f *Fake) Advance(d uint32) {
	f.mu.Lock()
	f.now += d
	f.mu.Unlock()
}
