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
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "reindex.done", Data: map[string]int{"embedded": 3}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: reindex.done") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"embedded":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishRecordEvent(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent("created", "sessions/2025/01/2025-01-10-120000-match.md")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: "+EventRecordCreated) {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"2025-01-10-120000-match"`) {
			t.Errorf("missing id in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestJournalChangedThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// The first change emits a summary; the second falls inside the window.
	b.PublishRecordEvent("created", "sessions/a.md")
	b.PublishRecordEvent("updated", "sessions/b.md")
	// Unknown kinds are dropped entirely.
	b.PublishRecordEvent("renamed", "sessions/c.md")

	time.Sleep(50 * time.Millisecond)
	summaries := 0
	records := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, EventJournalChanged) {
				summaries++
				if !strings.Contains(s, `"changes":1`) {
					t.Errorf("summary = %q, want 1 change", s)
				}
			} else {
				records++
			}
		default:
			break loop
		}
	}

	if records != 2 {
		t.Errorf("record events = %d, want 2", records)
	}
	if summaries != 1 {
		t.Errorf("journal.changed events = %d, want 1 (throttled)", summaries)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRecordEvent("deleted", "sessions/x.md")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: "+EventRecordDeleted) {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Capacity is 64; the overflow must not block the loop.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
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

	b.Publish(Event{Type: "record.updated", Data: RecordChange{Path: "x.md"}})
	b.PublishRecordEvent("updated", "x.md")
}
