// Package status provides a thread-safe status tracker for the controller daemon.
// The main loop copies component readings into it every tick; HTTP handlers
// and MQTT lifecycle messages read value snapshots from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	DryRunMs    int64
	Broker      string
	HTTPAddr    string
	Policy      string
	Threshold   uint32
	PinButton   int
	PinFlow     int
	PinRelay    int
}

// RecentEventsLimit is how many published transitions the tracker keeps.
const RecentEventsLimit = 20

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Readings
	Baselined     bool
	Counts        logic.EventCounts
	Recent        []logic.Event // oldest first, at most RecentEventsLimit
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets component readings, baseline status, and event counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(r Readings, baselined bool, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Readings = r
	t.snap.Baselined = baselined
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordEvent appends e to the recent transitions, dropping the oldest past
// RecentEventsLimit. Slices already handed out by Snapshot are never modified.
func (t *Tracker) RecordEvent(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keep := t.snap.Recent
	if len(keep) >= RecentEventsLimit {
		keep = keep[len(keep)-RecentEventsLimit+1:]
	}
	next := make([]logic.Event, 0, len(keep)+1)
	next = append(next, keep...)
	t.snap.Recent = append(next, e)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
