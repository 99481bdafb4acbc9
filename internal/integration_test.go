package internal

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/irrigation-controller/internal/button"
	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/flow"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/relay"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/web"
)

const (
	pinButton = 17
	pinFlow   = 27
	pinRelay  = 22
)

// rig is the controller hardware wired to fakes, stepped by hand the way the
// daemon's main loop steps it.
type rig struct {
	t       *testing.T
	ctrl    *gpio.FakeController
	clk     *clock.Fake
	button  *button.Button
	flow    *flow.Sensor
	relay   *relay.Relay
	det     *logic.Detector
	pub     *mqtt.FakePublisher
	tracker *status.Tracker

	start       time.Time
	lastService uint32
	presses     int
}

func newRig(t *testing.T, opts ...flow.Option) *rig {
	t.Helper()
	start := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	r := &rig{
		t:       t,
		ctrl:    gpio.NewFakeController(),
		clk:     clock.NewFake(0),
		det:     logic.NewDetector(0, start),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(start, status.Config{Broker: "tcp://test:1883", Policy: "exclude-noise", Threshold: 20}),
		start:   start,
	}
	r.button = button.New(pinButton, r.clk)
	r.flow = flow.New(pinFlow, opts...)
	r.relay = relay.New(pinRelay, r.clk)

	for name, attach := range map[string]func(gpio.Controller) error{
		"relay":  r.relay.Attach,
		"button": r.button.Attach,
		"flow":   r.flow.Attach,
	} {
		if err := attach(r.ctrl); err != nil {
			t.Fatalf("attach %s: %v", name, err)
		}
	}

	r.button.OnPressed(func() {
		r.presses++
		var err error
		if r.relay.IsOn() {
			err = r.relay.Deactivate()
		} else {
			err = r.relay.Activate()
		}
		if err != nil {
			t.Errorf("toggle relay: %v", err)
		}
	})
	return r
}

// tick advances the clock one second and runs one main loop pass.
func (r *rig) tick() []logic.Event {
	r.clk.Advance(1000)
	now := r.clk.Millis()

	r.presses = 0
	r.button.Read()
	r.flow.Service(clock.Elapsed(now, r.lastService))
	r.lastService = now

	events := r.det.Process(logic.Input{
		Flowing: r.flow.IsFlowing(),
		RelayOn: r.relay.IsOn(),
		Presses: r.presses,
		Time:    r.start.Add(time.Duration(now) * time.Millisecond),
	})
	for _, e := range events {
		if err := r.pub.Publish(e); err != nil {
			r.t.Logf("publish error: %v", err)
		}
		r.tracker.RecordEvent(e)
	}
	r.tracker.Update(status.Readings{
		Flow:   status.ReadFlow(r.flow),
		Relay:  status.ReadRelay(r.relay),
		Button: status.ReadButton(r.button),
	}, r.det.IsBaselined(), r.det.EventCountsSnapshot())
	return events
}

func (r *rig) press() {
	r.ctrl.Fire(pinButton)
}

func (r *rig) pulses(n int) {
	r.ctrl.FireN(pinFlow, n)
}

func eventTypes(events []logic.Event) []logic.EventType {
	var types []logic.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

// TestIntegrationWateringCycle runs a full cycle from button edge to MQTT:
// pump on, water flows, flow stops, pump off.
func TestIntegrationWateringCycle(t *testing.T) {
	r := newRig(t)

	r.tick() // baseline at 1s

	r.press()
	r.tick() // 2s: pump on

	r.pulses(12)
	r.tick() // 3s: accumulating
	r.pulses(12)
	r.tick() // 4s: 24 pulses, detected
	r.pulses(30)
	r.tick() // 5s
	r.tick() // 6s: run over

	r.press()
	r.tick() // 7s: pump off

	want := []logic.EventType{
		logic.EventButtonPress, logic.EventRelayOn,
		logic.EventFlowStart, logic.EventFlowStop,
		logic.EventButtonPress, logic.EventRelayOff,
	}
	if diff := cmp.Diff(want, r.pub.EventTypes()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	wantTotals := flow.Totals{Pulses: 54, DurationMillis: 3000, Runs: 1, SignificantRuns: 1}
	if diff := cmp.Diff(wantTotals, r.flow.Totals()); diff != "" {
		t.Errorf("flow totals (-want +got):\n%s", diff)
	}
	if got := r.relay.TotalOnDuration(); got != 5000 {
		t.Errorf("relay on duration: got %d, want 5000", got)
	}

	counts := r.det.EventCountsSnapshot()
	if counts.FlowStart != 1 || counts.FlowStop != 1 || counts.RelayOn != 1 || counts.RelayOff != 1 || counts.Presses != 2 {
		t.Errorf("event counts: got %+v", counts)
	}
}

// TestIntegrationPayloadFormat verifies the exact JSON for a relay event.
func TestIntegrationPayloadFormat(t *testing.T) {
	r := newRig(t)
	r.tick()
	r.press()
	r.tick()

	if len(r.pub.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(r.pub.Payloads))
	}
	want := `{"irrigation":{"timestamp":"2026-06-01T06:00:02Z","event":"RELAY_ON","flow":{"state":"OFF"},"relay":{"state":"ON"}}}`
	if got := string(r.pub.Payloads[1]); got != want {
		t.Errorf("payload:\ngot  %s\nwant %s", got, want)
	}
}

// TestIntegrationBounceRejection verifies a bouncing contact yields one press.
func TestIntegrationBounceRejection(t *testing.T) {
	r := newRig(t)
	r.tick()

	r.press()
	for i := 0; i < 5; i++ {
		r.clk.Advance(8)
		r.press()
	}
	events := r.tick()

	want := []logic.EventType{logic.EventButtonPress, logic.EventRelayOn}
	if diff := cmp.Diff(want, eventTypes(events)); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if got := r.relay.TotalOnCount(); got != 1 {
		t.Errorf("relay on count: got %d, want 1", got)
	}
}

// TestIntegrationNoiseIgnored verifies short pulse bursts never reach MQTT.
func TestIntegrationNoiseIgnored(t *testing.T) {
	r := newRig(t)
	r.tick()
	for _, n := range []int{4, 0, 19, 0, 1} {
		r.pulses(n)
		r.tick()
	}

	if len(r.pub.Events) != 0 {
		t.Errorf("expected no events, got %v", r.pub.EventTypes())
	}
	if got := r.flow.TotalPulses(); got != 0 {
		t.Errorf("total pulses: got %d, want 0", got)
	}
}

// TestIntegrationIncludeNoisePolicy verifies the alternate policy counts the
// same noise but still only publishes significant flow.
func TestIntegrationIncludeNoisePolicy(t *testing.T) {
	r := newRig(t, flow.WithPolicy(flow.IncludeNoise))
	r.tick()
	for _, n := range []int{4, 0, 19, 0, 25, 0} {
		r.pulses(n)
		r.tick()
	}

	want := []logic.EventType{logic.EventFlowStart, logic.EventFlowStop}
	if diff := cmp.Diff(want, r.pub.EventTypes()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	wantTotals := flow.Totals{Pulses: 48, DurationMillis: 3000, Runs: 3, SignificantRuns: 1}
	if diff := cmp.Diff(wantTotals, r.flow.Totals()); diff != "" {
		t.Errorf("flow totals (-want +got):\n%s", diff)
	}
}

// TestIntegrationPublishFailureDoesNotStopMeasurement verifies broker errors
// leave the components running.
func TestIntegrationPublishFailureDoesNotStopMeasurement(t *testing.T) {
	r := newRig(t)
	r.pub.PublishError = errors.New("broker unavailable")

	r.tick()
	r.press()
	r.tick()
	r.pulses(40)
	r.tick()

	if len(r.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events, got %d", len(r.pub.Events))
	}
	if !r.relay.IsOn() || !r.flow.IsFlowing() {
		t.Errorf("relay on=%v flowing=%v, want both true", r.relay.IsOn(), r.flow.IsFlowing())
	}
	if got := r.det.EventCountsSnapshot().FlowStart; got != 1 {
		t.Errorf("flow start count: got %d, want 1", got)
	}
}

// TestIntegrationStatusEndpoint verifies the JSON endpoint reflects the
// readings copied out of the loop.
func TestIntegrationStatusEndpoint(t *testing.T) {
	r := newRig(t)
	r.tick()
	r.press()
	r.tick()
	r.pulses(30)
	r.tick()

	srv := web.New(":0", r.tracker)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/index.json", nil))
	if rec.Code != 200 {
		t.Fatalf("status code: got %d, want 200", rec.Code)
	}

	var got status.StatusJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	s := got.Status
	if !s.Ready {
		t.Error("expected ready")
	}
	if s.Flow.State != "DETECTED" || !s.Flow.Flowing || s.Flow.TotalPulses != 30 {
		t.Errorf("flow: got %+v", s.Flow)
	}
	if s.Relay.State != "ON" || s.Relay.OnCount != 1 || s.Relay.CurrentOnMs != 1000 {
		t.Errorf("relay: got %+v", s.Relay)
	}
	if s.Button.LastPressedAt != 1000 {
		t.Errorf("button last pressed: got %d, want 1000", s.Button.LastPressedAt)
	}
	if s.Counts.FlowStart != 1 || s.Counts.Presses != 1 {
		t.Errorf("counts: got %+v", s.Counts)
	}
	wantRecent := []status.EventJSON{
		{Timestamp: "2026-06-01T06:00:02Z", Event: "BUTTON_PRESS"},
		{Timestamp: "2026-06-01T06:00:02Z", Event: "RELAY_ON"},
		{Timestamp: "2026-06-01T06:00:03Z", Event: "FLOW_START"},
	}
	if diff := cmp.Diff(wantRecent, s.Recent); diff != "" {
		t.Errorf("recent events (-want +got):\n%s", diff)
	}
}

// TestIntegrationShutdownPayloadFormat verifies the SHUTDOWN status event
// carries the final relay accounting.
func TestIntegrationShutdownPayloadFormat(t *testing.T) {
	r := newRig(t)
	r.tick()
	r.press()
	r.tick()
	r.tick()

	if err := r.relay.Off(); err != nil {
		t.Fatalf("relay off: %v", err)
	}
	r.tracker.Update(status.Readings{Relay: status.ReadRelay(r.relay)}, true, r.det.EventCountsSnapshot())

	snap := r.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	}
	if err := r.pub.PublishSystem(event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got status.StatusJSON
	if err := json.Unmarshal(r.pub.SystemPayloads[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status.Event != "SHUTDOWN" || got.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %s/%s", got.Status.Event, got.Status.Reason)
	}
	wantRelay := status.RelayJSON{State: "OFF", OnCount: 1, TotalOnMs: 1000}
	if diff := cmp.Diff(wantRelay, got.Status.Relay); diff != "" {
		t.Errorf("relay (-want +got):\n%s", diff)
	}
}
