package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
)

// stubToken is an already-completed paho token.
type stubToken struct{ err error }

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Error() error                   { return t.err }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubClient records payloads in delivery order. Methods the publisher does
// not use are left to the embedded nil interface.
type stubClient struct {
	paho.Client

	mu     sync.Mutex
	open   bool
	sent   []string
	failOn map[string]int // payload -> failures left

	hold chan struct{} // if set, the first Publish waits for it to close
	held chan struct{} // closed once the first Publish is waiting
	once sync.Once
}

func (s *stubClient) IsConnectionOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *stubClient) setOpen(open bool) {
	s.mu.Lock()
	s.open = open
	s.mu.Unlock()
}

func (s *stubClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if s.hold != nil {
		s.once.Do(func() {
			close(s.held)
			<-s.hold
		})
	}

	msg := string(payload.([]byte))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[msg] > 0 {
		s.failOn[msg]--
		return stubToken{err: errors.New("not acknowledged")}
	}
	s.sent = append(s.sent, msg)
	return stubToken{}
}

func (s *stubClient) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newTestPublisher(client *stubClient) *RealPublisher {
	return &RealPublisher{
		client: client,
		buf:    newRingBuffer(bufferCapacity),
		now:    func() time.Time { return time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC) },
	}
}

func publishRaw(t *testing.T, p *RealPublisher, payload string) {
	t.Helper()
	if err := p.PublishSystem(SystemEvent{Event: "TEST", RawPayload: []byte(payload)}); err != nil {
		t.Fatalf("publish %s: %v", payload, err)
	}
}

func (p *RealPublisher) isReplaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replaying
}

// waitIdle waits until no replay is running and the buffer is empty.
func waitIdle(t *testing.T, p *RealPublisher) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !p.isReplaying() && p.Buffered() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("publisher not idle: replaying=%v buffered=%d", p.isReplaying(), p.Buffered())
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	client := &stubClient{}
	p := newTestPublisher(client)

	publishRaw(t, p, "a")
	publishRaw(t, p, "b")

	if got := p.Buffered(); got != 2 {
		t.Errorf("buffered: got %d, want 2", got)
	}
	if sent := client.delivered(); len(sent) != 0 {
		t.Errorf("nothing should be sent while offline, got %v", sent)
	}
}

func TestRealPublisherSendsDirectlyWhenIdle(t *testing.T) {
	client := &stubClient{open: true}
	p := newTestPublisher(client)

	publishRaw(t, p, "live")

	if diff := cmp.Diff([]string{"live"}, client.delivered()); diff != "" {
		t.Errorf("delivered (-want +got):\n%s", diff)
	}
	if p.Buffered() != 0 {
		t.Errorf("buffered: got %d, want 0", p.Buffered())
	}
}

func TestRealPublisherReplayKeepsOrderWithLivePublishes(t *testing.T) {
	client := &stubClient{hold: make(chan struct{}), held: make(chan struct{})}
	p := newTestPublisher(client)

	publishRaw(t, p, "old-1")
	publishRaw(t, p, "old-2")

	client.setOpen(true)
	p.onConnect(client)
	<-client.held // replay is blocked sending old-1

	publishRaw(t, p, "new")
	close(client.hold)
	waitIdle(t, p)

	want := []string{"old-1", "old-2", "new"}
	if diff := cmp.Diff(want, client.delivered()); diff != "" {
		t.Errorf("delivery order (-want +got):\n%s", diff)
	}
}

func TestRealPublisherOfflinePublishIsReplayed(t *testing.T) {
	client := &stubClient{}
	p := newTestPublisher(client)

	publishRaw(t, p, "SHUTDOWN")
	client.setOpen(true)
	p.onConnect(client)
	waitIdle(t, p)

	if diff := cmp.Diff([]string{"SHUTDOWN"}, client.delivered()); diff != "" {
		t.Errorf("delivered (-want +got):\n%s", diff)
	}
}

func TestRealPublisherReplayFailureKeepsBacklogInOrder(t *testing.T) {
	client := &stubClient{failOn: map[string]int{"old-2": 1}}
	p := newTestPublisher(client)

	publishRaw(t, p, "old-1")
	publishRaw(t, p, "old-2")
	publishRaw(t, p, "old-3")

	client.setOpen(true)
	p.onConnect(client)
	waitFor(t, func() bool { return !p.isReplaying() })

	if got := p.Buffered(); got != 2 {
		t.Fatalf("buffered after failed replay: got %d, want 2", got)
	}

	// The next publish queues behind the backlog and retries it.
	publishRaw(t, p, "new")
	waitIdle(t, p)

	want := []string{"old-1", "old-2", "old-3", "new"}
	if diff := cmp.Diff(want, client.delivered()); diff != "" {
		t.Errorf("delivery order (-want +got):\n%s", diff)
	}
}

func TestRealPublisherReconnectedFollowsBacklog(t *testing.T) {
	client := &stubClient{open: true}
	p := newTestPublisher(client)
	p.onConnect(client)
	waitIdle(t, p)

	client.setOpen(false)
	publishRaw(t, p, "offline")
	client.setOpen(true)
	p.onConnect(client)
	waitIdle(t, p)

	sent := client.delivered()
	if len(sent) != 2 || sent[0] != "offline" {
		t.Fatalf("delivered: got %v, want offline then RECONNECTED", sent)
	}
	want := `{"system":{"timestamp":"2026-06-01T06:00:00Z","event":"RECONNECTED"}}`
	if sent[1] != want {
		t.Errorf("reconnected payload:\ngot  %s\nwant %s", sent[1], want)
	}
}

func TestRealPublisherConcurrentConnectDeliversAllInOrder(t *testing.T) {
	client := &stubClient{}
	p := newTestPublisher(client)

	const n = 200
	var want []string
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprintf("m%03d", i))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, m := range want {
			if err := p.PublishSystem(SystemEvent{Event: "TEST", RawPayload: []byte(m)}); err != nil {
				t.Errorf("publish %s: %v", m, err)
			}
		}
	}()

	time.Sleep(time.Millisecond)
	client.setOpen(true)
	p.onConnect(client)

	<-done
	waitIdle(t, p)

	if diff := cmp.Diff(want, client.delivered()); diff != "" {
		t.Errorf("delivery order (-want +got):\n%s", diff)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}
