package events

import (
	"errors"
	"sync"
)

// DefaultHistoryCap bounds the retained event log.
const DefaultHistoryCap = 500

// ErrNotFound is returned when resolving an event id that is no longer
// in the history.
var ErrNotFound = errors.New("event not found")

// History is the bounded, append-only event log. When full, the oldest
// entries are dropped first. Consumers see it as append-only; entries
// are never mutated after application except the Resolved flag.
type History struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// NewHistory creates a history holding at most capacity events; zero
// means DefaultHistoryCap.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &History{cap: capacity}
}

// Append records an event, dropping the oldest when over capacity.
func (h *History) Append(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, e)
	if len(h.events) > h.cap {
		h.events = h.events[len(h.events)-h.cap:]
	}
}

// Recent returns copies of the most recent n events, oldest first.
// n <= 0 returns everything retained.
func (h *History) Recent(n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := 0
	if n > 0 && len(h.events) > n {
		start = len(h.events) - n
	}
	out := make([]Event, len(h.events)-start)
	copy(out, h.events[start:])
	return out
}

// Active returns copies of every unresolved event.
func (h *History) Active() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Event
	for _, e := range h.events {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	return out
}

// Resolve marks an event resolved by id.
func (h *History) Resolve(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.events {
		if h.events[i].ID == id {
			h.events[i].Resolved = true
			return nil
		}
	}
	return ErrNotFound
}

// Len reports the number of retained events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// Replace swaps the retained log for a restored one, trimming to
// capacity. Used by engine restore.
func (h *History) Replace(events []Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(events) > h.cap {
		events = events[len(events)-h.cap:]
	}
	h.events = make([]Event, len(events))
	copy(h.events, events)
}
