package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSEEvent is one dashboard update. Type is "fetch_update", "resync_update"
// or "selections_changed"; Data carries the matching state payload.
type SSEEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SSEHub fans run state events out to connected dashboard clients. Slow
// clients are dropped rather than allowed to stall a broadcast.
type SSEHub struct {
	clients    map[chan SSEEvent]bool
	broadcast  chan SSEEvent
	register   chan chan SSEEvent
	unregister chan chan SSEEvent
	mu         sync.RWMutex
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[chan SSEEvent]bool),
		// Buffered so tracker callbacks never block on a broadcast
		broadcast:  make(chan SSEEvent, 16),
		register:   make(chan chan SSEEvent),
		unregister: make(chan chan SSEEvent),
	}
}

// Run starts the hub loop
func (h *SSEHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client <- event:
				default:
					close(client)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends an event to all clients
func (h *SSEHub) Broadcast(event SSEEvent) {
	h.broadcast <- event
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		client := make(chan SSEEvent, 4)
		s.sseHub.register <- client

		go func() {
			<-r.Context().Done()
			s.sseHub.unregister <- client
		}()

		// New dashboards get the current run state before any deltas
		s.writeInitialState(w, flusher)

		for event := range client {
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) writeInitialState(w http.ResponseWriter, flusher http.Flusher) {
	if s.fetch != nil {
		writeSSE(w, SSEEvent{Type: "fetch_update", Data: stateToResponse(s.fetch.Tracker().State())})
	}
	if s.resync != nil {
		rs := ResyncStatus{
			StateResponse: stateToResponse(s.resync.Tracker().State()),
			Skip:          s.resync.Skip(),
			Progress:      s.resync.Progress(),
		}
		if err := s.resync.LastError(); err != nil {
			rs.Error = err.Error()
		}
		writeSSE(w, SSEEvent{Type: "resync_update", Data: rs})
	}
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event SSEEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
