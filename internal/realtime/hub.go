package realtime

import (
	"sync"

	"github.com/promptgist/promptgist/pkg/logger"
	"github.com/promptgist/promptgist/pkg/metrics"
)

var log = logger.Component("realtime")

// Hub fans events out to the subscribers of each document on this
// instance. Delivery never blocks: a subscriber whose buffer is full misses
// the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscription receives the events of one document until Close is called.
type Subscription struct {
	DocumentID string
	C          <-chan Event

	c    chan Event
	hub  *Hub
	once sync.Once
}

func (h *Hub) Subscribe(docID string) *Subscription {
	c := make(chan Event, h.buffer)
	s := &Subscription{DocumentID: docID, C: c, c: c, hub: h}
	h.mu.Lock()
	set := h.subs[docID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[docID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	log.Debugf("subscribed %s", docID)
	return s
}

// Close removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set := h.subs[s.DocumentID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.DocumentID)
			}
		}
		close(s.c)
		h.mu.Unlock()
		log.Debugf("unsubscribed %s", s.DocumentID)
	})
}

// Deliver hands ev to every subscriber of its document.
func (h *Hub) Deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.DocumentID] {
		select {
		case s.c <- ev:
		default:
			metrics.EventsDropped.Inc()
			log.Warnf("subscriber buffer full, dropped %s for %s", ev.Type, ev.DocumentID)
		}
	}
}

// Subscribers reports the number of live subscriptions for docID.
func (h *Hub) Subscribers(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[docID])
}
