package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"urban-issue-service/internal/models"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.TriageEvent
	err    error
	done   chan struct{}
}

func newFakeNotifier(err error) *fakeNotifier {
	return &fakeNotifier{err: err, done: make(chan struct{}, 10)}
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Notify(_ context.Context, ev models.TriageEvent) error {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakeNotifier) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func event(p models.Priority) models.TriageEvent {
	return models.NewTriageEvent("issue-7", models.IssuePothole, 0.91, 4, p, time.Now())
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestQueueEvent_FiltersByPriority(t *testing.T) {
	s := New(Config{QueueSize: 10, MaxWorkers: 1, MinPriority: models.PriorityHigh}, nil, nil)

	if s.QueueEvent(event(models.PriorityLow)) {
		t.Error("Expected Low to be skipped")
	}
	if s.QueueEvent(event(models.PriorityMedium)) {
		t.Error("Expected Medium to be skipped")
	}
	if !s.QueueEvent(event(models.PriorityHigh)) {
		t.Error("Expected High to be queued")
	}
	if !s.QueueEvent(event(models.PriorityEmergency)) {
		t.Error("Expected Emergency to be queued")
	}
}

func TestQueueEvent_DropsWhenFull(t *testing.T) {
	s := New(Config{QueueSize: 1, MaxWorkers: 1}, nil, nil)

	if !s.QueueEvent(event(models.PriorityEmergency)) {
		t.Fatal("Expected first event to be queued")
	}
	if s.QueueEvent(event(models.PriorityEmergency)) {
		t.Error("Expected second event to be dropped")
	}
}

func TestWorkers_DispatchToNotifiers(t *testing.T) {
	ok := newFakeNotifier(nil)
	failing := newFakeNotifier(errors.New("channel down"))
	s := New(Config{QueueSize: 4, MaxWorkers: 2}, nil, nil, failing, ok)

	var wg sync.WaitGroup
	s.Start(&wg)
	defer func() {
		s.Stop()
		wg.Wait()
	}()

	ev := event(models.PriorityEmergency)
	if err := s.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	wait(t, failing.done)
	wait(t, ok.done)

	if ok.CallCount() != 1 || ok.events[0].EventID != ev.EventID {
		t.Errorf("Expected one dispatch of %s, got %+v", ev.EventID, ok.events)
	}
}

// subscribe dials a websocket client registered on hub.
func subscribe(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hub.Add(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	waitFor(t, func() bool { return hub.Len() == 1 })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(nil)
	client := subscribe(t, hub)

	notifier := newFakeNotifier(nil)
	s := New(Config{QueueSize: 4, MaxWorkers: 1}, hub, nil, notifier)
	var wg sync.WaitGroup
	s.Start(&wg)
	defer func() {
		s.Stop()
		wg.Wait()
	}()

	ev := event(models.PriorityHigh).WithLocation(12.9, 77.59)
	s.QueueEvent(ev)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var got models.TriageEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.EventID != ev.EventID || got.IssueType != models.IssuePothole || got.Priority != models.PriorityHigh {
		t.Errorf("unexpected alert %+v", got)
	}
	wait(t, notifier.done)
}

func TestHub_StalledSubscriberIsDropped(t *testing.T) {
	hub := NewHub(nil)
	hub.writeWait = 200 * time.Millisecond
	subscribe(t, hub) // never reads

	payload := make([]byte, 1<<20)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4*sendBuffer; i++ {
			hub.Broadcast(payload)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a subscriber that does not read")
	}
	waitFor(t, func() bool { return hub.Len() == 0 })
}

func TestStop_ReturnsWithStalledSubscriber(t *testing.T) {
	hub := NewHub(nil)
	hub.writeWait = 200 * time.Millisecond
	subscribe(t, hub) // never reads

	// Leave the writer stuck on large frames.
	payload := make([]byte, 1<<20)
	for i := 0; i < sendBuffer/2; i++ {
		hub.Broadcast(payload)
	}

	s := New(Config{QueueSize: 16, MaxWorkers: 2}, hub, nil)
	var wg sync.WaitGroup
	s.Start(&wg)
	for i := 0; i < 10; i++ {
		s.QueueEvent(event(models.PriorityEmergency))
	}
	s.Stop()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("workers still running after Stop")
	}
	if hub.Len() != 0 {
		t.Errorf("Expected Stop to disconnect subscribers, got %d", hub.Len())
	}
}
