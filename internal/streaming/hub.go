package streaming

import (
	"sync"

	"github.com/playlens/survey-orchestrator/internal/metrics"
)

// Hub is an in-memory pub/sub of run events keyed by session, with a
// per-session ring buffer so a late observer can replay the recent
// backlog. It exists for the observer endpoint only; the caller's own
// stream is written directly by the run's emitter.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe registers an observer channel for a session. The caller
// must drain it and call Unsubscribe.
func (h *Hub) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	metrics.ObserverSubscribers.Inc()
	return ch
}

// Unsubscribe removes and closes the observer channel.
func (h *Hub) Unsubscribe(sessionID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[sessionID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
			metrics.ObserverSubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
}

// Publish assigns a sequence number, records the event in the ring and
// fans it out without blocking. Slow observers lose events; the
// caller-facing stream is unaffected. The sends happen under the lock:
// Unsubscribe closes channels, and a send racing that close would
// panic.
func (h *Hub) Publish(sessionID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rg := h.history[sessionID]
	if rg == nil {
		rg = newRing(h.capacity)
		h.history[sessionID] = rg
	}
	rg.nextSeq++
	ev.Seq = rg.nextSeq
	rg.push(ev)
	for ch := range h.subscribers[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ReplaySince returns buffered events with Seq > since, best effort
// within the ring capacity.
func (h *Hub) ReplaySince(sessionID string, since uint64) []Event {
	h.mu.RLock()
	rg := h.history[sessionID]
	h.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
