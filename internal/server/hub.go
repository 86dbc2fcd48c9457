package server

import (
	"encoding/json"
	"sync"
)

// clientBuffer is the per-subscriber send buffer. A subscriber that falls
// this far behind starts dropping events; progress updates are superseded by
// later ones anyway.
const clientBuffer = 64

// Event is the wire format of one progress-stream message.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub fans analysis lifecycle events out to progress-stream subscribers. It
// implements the jobs package's EventNotifier.
//
// Subscribers register for one analysis ID. The hub remembers the last event
// per analysis so late subscribers immediately learn the current state. All
// methods are safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
	last map[string][]byte
	done map[string]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan []byte]struct{}),
		last: make(map[string][]byte),
		done: make(map[string]bool),
	}
}

// Broadcast routes an event to the subscribers of the analysis named in its
// data. Events whose data carries no analysis_id are dropped.
func (h *Hub) Broadcast(event string, data any) {
	id := analysisID(data)
	if id == "" {
		return
	}
	msg, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.Lock()
	h.last[id] = msg
	if isTerminal(event) {
		h.done[id] = true
	}
	clients := make([]chan []byte, 0, len(h.subs[id]))
	for ch := range h.subs[id] {
		clients = append(clients, ch)
	}
	h.mu.Unlock()

	for _, ch := range clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers for the events of one analysis. The returned channel
// receives marshalled [Event] payloads, starting with the last known event
// when one exists. cancel must be called when the subscriber disconnects.
func (h *Hub) Subscribe(analysisID string) (events <-chan []byte, cancel func()) {
	ch := make(chan []byte, clientBuffer)

	h.mu.Lock()
	if h.subs[analysisID] == nil {
		h.subs[analysisID] = make(map[chan []byte]struct{})
	}
	h.subs[analysisID][ch] = struct{}{}
	if last, ok := h.last[analysisID]; ok {
		ch <- last
	}
	h.mu.Unlock()

	cancel = func() {
		h.mu.Lock()
		if set, ok := h.subs[analysisID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, analysisID)
				// The last subscriber of a finished analysis takes the
				// remembered state with it.
				if h.done[analysisID] {
					delete(h.last, analysisID)
					delete(h.done, analysisID)
				}
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers across all
// analyses.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// analysisID extracts the analysis_id field from broadcast data maps.
func analysisID(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["analysis_id"].(string)
	return id
}

// isTerminal reports whether event ends an analysis lifecycle.
func isTerminal(event string) bool {
	return event == "analysis:complete" || event == "analysis:failed"
}
