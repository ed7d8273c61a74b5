package streaming

import (
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Emitter writes one framed event to an output stream in call order.
// Implementations never reorder or batch.
type Emitter interface {
	Emit(Event) error
}

// SSEEmitter frames events as text-event-stream records: one
// `data: {json}` line per event, terminated by a blank line, flushed
// immediately so first-token latency stays low.
type SSEEmitter struct {
	w       io.Writer
	flusher http.Flusher
}

func NewSSEEmitter(w io.Writer, flusher http.Flusher) *SSEEmitter {
	return &SSEEmitter{w: w, flusher: flusher}
}

func (s *SSEEmitter) Emit(ev Event) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", ev.Marshal()); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Collector buffers events in order. Used by the non-streaming mirror
// endpoint and by tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Emit(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of everything emitted so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Fanout forwards each event to the caller's emitter and mirrors it to
// the observer hub. A hub publish never fails the run.
type Fanout struct {
	primary   Emitter
	hub       *Hub
	sessionID string
}

func NewFanout(primary Emitter, hub *Hub, sessionID string) *Fanout {
	return &Fanout{primary: primary, hub: hub, sessionID: sessionID}
}

func (f *Fanout) Emit(ev Event) error {
	err := f.primary.Emit(ev)
	if f.hub != nil {
		f.hub.Publish(f.sessionID, ev)
	}
	return err
}
