package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe(1)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishReachesOnlyOwner(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	mine := b.Subscribe(1)
	defer b.Unsubscribe(mine)
	theirs := b.Subscribe(2)
	defer b.Unsubscribe(theirs)

	b.Publish(1, "job.finished", map[string]string{"task_id": "abc"})

	select {
	case msg := <-mine:
		s := string(msg)
		if !strings.Contains(s, "event: job.finished") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"task_id":"abc"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	select {
	case msg := <-theirs:
		t.Errorf("other user received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNoteEvent_GraphThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	// First event should trigger graph.updated.
	b.PublishNoteEvent(1, "created", 10)
	// Second event immediately should NOT trigger another graph.updated.
	b.PublishNoteEvent(1, "updated", 11)

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	graphCount := 0
	noteCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "graph.updated") {
				graphCount++
			} else {
				noteCount++
			}
		default:
			break loop
		}
	}

	if noteCount != 2 {
		t.Errorf("note events = %d, want 2", noteCount)
	}
	if graphCount != 1 {
		t.Errorf("graph events = %d, want 1 (throttled)", graphCount)
	}
}

func TestGraphThrottleIsPerUser(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	a := b.Subscribe(1)
	defer b.Unsubscribe(a)
	c := b.Subscribe(2)
	defer b.Unsubscribe(c)

	b.PublishNoteEvent(1, "created", 1)
	b.PublishNoteEvent(2, "created", 2)
	time.Sleep(50 * time.Millisecond)

	for user, ch := range map[int64]chan []byte{1: a, 2: c} {
		graph := 0
	drain:
		for {
			select {
			case msg := <-ch:
				if strings.Contains(string(msg), "graph.updated") {
					graph++
				}
			default:
				break drain
			}
		}
		if graph != 1 {
			t.Errorf("user %d graph events = %d, want 1", user, graph)
		}
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.Serve(w, req, 7)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishNoteEvent(7, "updated", 3)
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, `"id":3`) {
		t.Errorf("handler output missing note id: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(1, "test", map[string]string{"i": "x"})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe(1)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(1, "note.updated", map[string]string{})
	b.PublishNoteEvent(1, "updated", 1)
}

func TestSSEHandlerHeartbeat(t *testing.T) {
	prev := heartbeat
	heartbeat = 20 * time.Millisecond
	t.Cleanup(func() { heartbeat = prev })

	b := NewBroker(time.Second)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.Serve(w, req, 1)
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), ": ping\n\n") {
		t.Errorf("idle stream got no heartbeat: %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
}
