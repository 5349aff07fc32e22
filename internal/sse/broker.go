// Package sse streams journal change events to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/rallylog/internal/journal"
)

// Event types.
const (
	EventRecordCreated  = "record.created"
	EventRecordUpdated  = "record.updated"
	EventRecordDeleted  = "record.deleted"
	EventJournalChanged = "journal.changed"
)

// Event is a single server-sent event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RecordChange is the payload of the record.* events.
type RecordChange struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// JournalChange is the payload of journal.changed: the number of record
// changes folded into it.
type JournalChange struct {
	Changes int `json:"changes"`
}

type recordEventReq struct {
	kind string
	path string
}

// Broker fans events out to subscribers.
//
// A single loop goroutine owns the client set and the journal.changed
// throttle; public methods talk to it over channels.
type Broker struct {
	summaryMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	recordCh      chan recordEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that emits at most one journal.changed event per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		summaryMin:    throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		recordCh:      make(chan recordEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastSummary time.Time
		pending     int
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.recordCh:
			data := RecordChange{ID: journal.IDFromPath(req.path), Path: req.path}
			switch req.kind {
			case "created":
				broadcast(Event{Type: EventRecordCreated, Data: data})
			case "updated":
				broadcast(Event{Type: EventRecordUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: EventRecordDeleted, Data: data})
			default:
				continue
			}

			pending++
			now := time.Now()
			if now.Sub(lastSummary) >= b.summaryMin {
				lastSummary = now
				broadcast(Event{Type: EventJournalChanged, Data: JournalChange{Changes: pending}})
				pending = 0
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends event to every client.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishRecordEvent announces a change to the record file at path. kind is
// one of "created", "updated" or "deleted"; anything else is ignored. Its
// signature matches index.EventCallback.
func (b *Broker) PublishRecordEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordCh <- recordEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to the client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
