// Package sse implements a Server-Sent Events broker for preview state and
// asset library changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types broadcast by the broker.
const (
	TypePreviewState  = "preview.state"
	TypePreviewClosed = "preview.closed"
	TypeKeyApplied    = "preview.key"
	TypeAssetCreated  = "asset.created"
	TypeAssetUpdated  = "asset.updated"
	TypeAssetDeleted  = "asset.deleted"
)

// Event represents an SSE event to broadcast. Clients subscribed to a
// session only receive events carrying that Session.
type Event struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Data    any    `json:"data"`
}

type client struct {
	ch      chan []byte
	session string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set and the per-session
// throttle state. Public methods talk to the loop through channels, so no
// mutexes are required.
type Broker struct {
	stateMin time.Duration

	subscribeCh   chan client
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	stateCh       chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that sends at most one preview.state event per
// session every stateThrottle; intermediate states collapse into the latest.
func NewBroker(stateThrottle time.Duration) *Broker {
	if stateThrottle <= 0 {
		stateThrottle = 100 * time.Millisecond
	}

	b := &Broker{
		stateMin:      stateThrottle,
		subscribeCh:   make(chan client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		stateCh:       make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastState := make(map[string]time.Time)
	pending := make(map[string]Event)

	flushTicker := time.NewTicker(b.stateMin)
	defer flushTicker.Stop()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, session := range clients {
			if session != "" && event.Session != session {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendState := func(event Event, now time.Time) {
		lastState[event.Session] = now
		delete(pending, event.Session)
		broadcast(event)
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case c := <-b.subscribeCh:
			clients[c.ch] = c.session

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.stateCh:
			if event.Type == TypePreviewClosed {
				delete(pending, event.Session)
				delete(lastState, event.Session)
				broadcast(event)
				continue
			}
			now := time.Now()
			if now.Sub(lastState[event.Session]) >= b.stateMin {
				sendState(event, now)
			} else {
				pending[event.Session] = event
			}

		case now := <-flushTicker.C:
			for id, event := range pending {
				if now.Sub(lastState[id]) >= b.stateMin {
					sendState(event, now)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel. A non-empty session
// limits delivery to that session's events.
func (b *Broker) Subscribe(session string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- client{ch: ch, session: session}:
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

// Publish sends an event to all matching clients without throttling.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishState queues a throttled preview.state event for session.
func (b *Broker) PublishState(session string, state any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.stateCh <- Event{Type: TypePreviewState, Session: session, Data: state}:
	case <-b.stopped:
	}
}

// PublishClosed drops pending state for session and announces its end.
func (b *Broker) PublishClosed(session string) {
	if b.closed.Load() {
		return
	}
	event := Event{Type: TypePreviewClosed, Session: session, Data: map[string]string{"id": session}}
	select {
	case b.stateCh <- event:
	case <-b.stopped:
	}
}

// PublishAssetEvent maps a library change kind ("created", "updated",
// "deleted") to its asset.* event.
func (b *Broker) PublishAssetEvent(kind, path string) {
	var typ string
	switch kind {
	case "created":
		typ = TypeAssetCreated
	case "updated":
		typ = TypeAssetUpdated
	case "deleted":
		typ = TypeAssetDeleted
	default:
		return
	}
	b.Publish(Event{Type: typ, Data: map[string]string{"path": path}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?session=id]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("session"))
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
