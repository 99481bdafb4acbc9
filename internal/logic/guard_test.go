package logic

import (
	"testing"
	"time"
)

func TestDryRunGuardDisabled(t *testing.T) {
	g := NewDryRunGuard(0)
	for i := 0; i < 10; i++ {
		if g.Check(t0.Add(time.Duration(i)*time.Hour), true, false) {
			t.Fatal("disabled guard must never trip")
		}
	}
}

func TestDryRunGuardTripsAfterGrace(t *testing.T) {
	g := NewDryRunGuard(30 * time.Second)

	if g.Check(t0, true, false) {
		t.Error("should not trip at activation")
	}
	if g.Check(t0.Add(29*time.Second), true, false) {
		t.Error("should not trip before grace")
	}
	if !g.Check(t0.Add(30*time.Second), true, false) {
		t.Error("should trip at grace")
	}
}

func TestDryRunGuardFlowResets(t *testing.T) {
	g := NewDryRunGuard(30 * time.Second)

	g.Check(t0, true, false)
	g.Check(t0.Add(20*time.Second), true, true) // water arrives
	if g.Check(t0.Add(40*time.Second), true, false) {
		t.Error("dry period restarts after flow stops")
	}
	if !g.Check(t0.Add(70*time.Second), true, false) {
		t.Error("should trip 30s after flow stopped")
	}
}

func TestDryRunGuardRelayOffResets(t *testing.T) {
	g := NewDryRunGuard(30 * time.Second)

	g.Check(t0, true, false)
	g.Check(t0.Add(10*time.Second), false, false)
	if g.Check(t0.Add(35*time.Second), true, false) {
		t.Error("reactivation starts a fresh grace period")
	}
	if g.Grace() != 30*time.Second {
		t.Errorf("Grace: got %v", g.Grace())
	}
}
