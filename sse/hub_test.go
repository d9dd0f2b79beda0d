package sse

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

// --- Client ---

func TestClientSendAndOverflow(t *testing.T) {
	c := NewClient("session:s1:a", WithSessionID("s1"))
	if c.SessionID() != "s1" {
		t.Errorf("expected session metadata, got %v", c.Metadata())
	}
	for i := 0; i < ClientBuffer; i++ {
		if !c.Send(Event{Name: "partial"}) {
			t.Fatalf("send %d failed before buffer was full", i)
		}
	}
	if c.Send(Event{Name: "overflow"}) {
		t.Error("expected send to fail when queue is full")
	}
	if ev := <-c.Events(); ev.Name != "partial" {
		t.Errorf("unexpected first event %q", ev.Name)
	}
}

// --- Hub ---

func TestHubPublishMatchesSessionPattern(t *testing.T) {
	hub := startHub(t)

	a := NewClient("session:s1:a")
	b := NewClient("session:s1:b")
	other := NewClient("session:s2:a")
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)
	waitFor(t, func() bool { return hub.ClientCount() == 3 })

	hub.Publish("session:s1:*", Event{Name: "chunk", Data: []byte(`{"x":1}`)})

	for _, c := range []*Client{a, b} {
		select {
		case ev := <-c.Events():
			if ev.Name != "chunk" || string(ev.Data) != `{"x":1}` {
				t.Errorf("%s: unexpected event %+v", c.ID(), ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: expected event", c.ID())
		}
	}
	select {
	case ev := <-other.Events():
		t.Errorf("unexpected event for other session: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubUnregisterClosesClient(t *testing.T) {
	hub := startHub(t)
	c := NewClient("session:s1:a")
	hub.Register(c)
	waitFor(t, func() bool { return hub.Client("session:s1:a") != nil })

	hub.Unregister(c)
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	if _, ok := <-c.Events(); ok {
		t.Error("expected events channel to be closed")
	}
}

func TestHubReRegisterReplacesClient(t *testing.T) {
	hub := startHub(t)
	first := NewClient("session:s1:a")
	second := NewClient("session:s1:a")
	hub.Register(first)
	hub.Register(second)
	waitFor(t, func() bool { return hub.Client("session:s1:a") == second })

	if _, ok := <-first.Events(); ok {
		t.Error("expected replaced client to be closed")
	}
	// Stale unregister must not evict the replacement.
	hub.Unregister(first)
	hub.Publish("session:s1:*", Event{Name: "ping"})
	select {
	case ev := <-second.Events():
		if ev.Name != "ping" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected replacement to stay registered")
	}
}

func TestHubStopIsIdempotentAndUnblocks(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()
	c := NewClient("session:s1:a")
	hub.Register(c)

	hub.Stop()
	hub.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Calls after Stop return instead of blocking.
	hub.Register(NewClient("late"))
	hub.Unregister(c)
	hub.Publish("*", Event{Name: "late"})
}

// --- Wire format ---

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvent(&buf, Event{Name: "partial", Data: []byte(`{"text":"hi"}`)}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "event: partial\ndata: {\"text\":\"hi\"}\n\n" {
		t.Errorf("unexpected frame %q", buf.String())
	}
	buf.Reset()
	_ = WriteEvent(&buf, Event{Data: []byte("x")})
	if buf.String() != "data: x\n\n" {
		t.Errorf("unexpected unnamed frame %q", buf.String())
	}
}

// --- Handler ---

func TestServeSSEStreamsEvents(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeSSE(hub, w, r, "session:s1:tab", WithSessionID("s1"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if line == "\n" {
				return strings.Join(lines, "")
			}
			lines = append(lines, line)
		}
	}

	if frame := readFrame(); !strings.Contains(frame, "event: connected") || !strings.Contains(frame, `"session_id":"s1"`) {
		t.Fatalf("unexpected connected frame %q", frame)
	}

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	hub.Publish("session:s1:*", Event{Name: "finished", Data: []byte(`{"status":"FINISHED"}`)})
	if frame := readFrame(); frame != "event: finished\ndata: {\"status\":\"FINISHED\"}\n" {
		t.Errorf("unexpected frame %q", frame)
	}
}

// --- Component ---

func TestComponentLifecycle(t *testing.T) {
	comp := NewComponent("/v1/sessions/:id/events")
	ctx := context.Background()
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	comp.Hub().Register(NewClient("session:s1:a"))
	waitFor(t, func() bool { return comp.Hub().ClientCount() == 1 })

	if h := comp.Health(ctx); !strings.Contains(h.Message, "1 clients") {
		t.Errorf("unexpected health %q", h.Message)
	}
	if d := comp.Describe(); d.Type != "sse" || !strings.Contains(d.Details, "/events") {
		t.Errorf("unexpected description %+v", d)
	}
	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if comp.Hub().ClientCount() != 0 {
		t.Error("expected clients to be closed on stop")
	}
}
