package logic

import "time"

// DryRunGuard trips when the pump relay has been on for a full grace period
// without significant flow, which means the pump is running dry or the line
// is blocked.
type DryRunGuard struct {
	grace    time.Duration
	drySince time.Time
}

// NewDryRunGuard creates a guard. A grace <= 0 disables it.
func NewDryRunGuard(grace time.Duration) *DryRunGuard {
	return &DryRunGuard{grace: grace}
}

// Check returns true when the relay should be switched off.
func (g *DryRunGuard) Check(now time.Time, relayOn, flowing bool) bool {
	if g.grace <= 0 || !relayOn || flowing {
		g.drySince = time.Time{}
		return false
	}
	if g.drySince.IsZero() {
		g.drySince = now
	}
	return now.Sub(g.drySince) >= g.grace
}

// Grace returns the configured grace period.
func (g *DryRunGuard) Grace() time.Duration {
	return g.grace
}
