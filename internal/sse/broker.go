// Package sse streams case pipeline state changes to HTTP clients as
// Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"casewatch/internal/models"
)

// subscriberBuffer is the per-client frame buffer. A client that falls
// this far behind starts losing frames rather than stalling the broker.
const subscriberBuffer = 64

// Event is one broadcast payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans case events out to all connected SSE clients.
//
// A single loop goroutine owns the subscriber set; every public method
// talks to it over channels, so there is no shared mutable state.
type Broker struct {
	reg    chan chan []byte
	unreg  chan chan []byte
	events chan Event
	count  chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker creates a broker and starts its loop.
func NewBroker() *Broker {
	b := &Broker{
		reg:    make(chan chan []byte),
		unreg:  make(chan chan []byte),
		events: make(chan Event, 256),
		count:  make(chan chan int),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)

	subs := make(map[chan []byte]struct{})
	for {
		select {
		case <-b.quit:
			for ch := range subs {
				close(ch)
			}
			return

		case ch := <-b.reg:
			subs[ch] = struct{}{}

		case ch := <-b.unreg:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.events:
			frame, err := formatFrame(ev)
			if err != nil {
				continue
			}
			for ch := range subs {
				select {
				case ch <- frame:
				default:
					// Slow client, drop the frame.
				}
			}

		case resp := <-b.count:
			resp <- len(subs)
		}
	}
}

// formatFrame renders an event in SSE wire format.
func formatFrame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: marshal event data: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\ndata: %s\n\n", ev.Type, data)
	return buf.Bytes(), nil
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client and returns its frame channel. After
// Close the returned channel is already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.reg <- ch:
	case <-b.done:
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
	case b.unreg <- ch:
	case <-b.done:
	}
}

// ClientCount reports the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts an event to all clients. After Close it is a no-op.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// PublishCaseEvent broadcasts a "case.<state>" event carrying the full
// case status; the monitor calls this on every transition.
func (b *Broker) PublishCaseEvent(status models.CaseStatus) {
	b.Publish(Event{
		Type: "case." + string(status.State),
		Data: status,
	})
}

// ServeHTTP streams frames to one client until it disconnects.
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

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
