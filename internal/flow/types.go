package flow

// Policy selects how pulses feed the lifetime totals.
type Policy int

const (
	// ExcludeNoise only counts a run once it reaches the detection threshold.
	// The first crossing backfills the whole run so far; later periods add
	// their own pulses and time.
	ExcludeNoise Policy = iota

	// IncludeNoise counts every observed pulse and period immediately, counts
	// every run, and counts significant runs separately.
	IncludeNoise
)

func (p Policy) String() string {
	switch p {
	case ExcludeNoise:
		return "exclude-noise"
	case IncludeNoise:
		return "include-noise"
	}
	return "unknown"
}

// ParsePolicy converts a policy name back to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "exclude-noise", "":
		return ExcludeNoise, true
	case "include-noise":
		return IncludeNoise, true
	}
	return ExcludeNoise, false
}

// State is the run classification after the most recent Service.
type State string

const (
	StateIdle         State = "IDLE"
	StateAccumulating State = "ACCUMULATING"
	StateDetected     State = "DETECTED"
)

// Run is the flow in progress. It resets whenever a period sees no pulses.
type Run struct {
	Pulses         uint64
	DurationMillis uint64
	Detected       bool
}

// Totals are lifetime counters. They never decrease.
type Totals struct {
	Pulses          uint64
	DurationMillis  uint64
	Runs            uint64
	SignificantRuns uint64
}
