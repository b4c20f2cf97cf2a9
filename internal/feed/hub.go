// Package feed streams simulation updates to WebSocket subscribers.
// The feed is one-way: clients receive event and status frames and
// send nothing but control messages.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/events"
)

// Frame types sent to subscribers.
const (
	FrameEvent = "event"
	FrameTick  = "tick"
)

// tickFrameInterval throttles tick frames so a fast simulation does not
// flood slow subscribers; events are never throttled.
const tickFrameInterval = time.Second

// Frame is the envelope every feed message travels in.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Hub maintains the set of active subscribers and fans frames out to
// them. A subscriber that cannot keep up is dropped rather than allowed
// to stall the rest.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	// done is closed when Run exits, unblocking handler goroutines
	// that would otherwise wait on register or unregister forever.
	done chan struct{}
	mu   sync.Mutex
	log  *slog.Logger

	lastTickFrame time.Time
}

// NewHub initializes a hub. Run must be started for it to serve.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run handles subscriber lifecycle and broadcasts until the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			h.log.Info("feed hub shut down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("feed subscriber connected", "subscribers", n)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Info("feed subscriber disconnected", "subscribers", len(h.clients))
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer: drop it.
					close(client.send)
					delete(h.clients, client)
					h.log.Warn("feed subscriber dropped: send buffer full")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) send(frameType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("feed frame marshal failed", "type", frameType, "err", err)
		return
	}
	msg, err := json.Marshal(Frame{Type: frameType, Data: data})
	if err != nil {
		h.log.Error("feed envelope marshal failed", "type", frameType, "err", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		// Hub loop backed up; drop the frame instead of blocking the
		// simulation.
	}
}

// OnEvent implements engine.Listener: every event becomes a frame.
func (h *Hub) OnEvent(e events.Event) {
	h.send(FrameEvent, e)
}

// OnTick implements engine.Listener: tick frames are rate-limited to
// one per tickFrameInterval of wall time. Each frame carries the full
// state snapshot from its tick, so subscribers never need to poll.
func (h *Hub) OnTick(s engine.TickSummary) {
	if time.Since(h.lastTickFrame) < tickFrameInterval {
		return
	}
	h.lastTickFrame = time.Now()
	h.send(FrameTick, s)
}
