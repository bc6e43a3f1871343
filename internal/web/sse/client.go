package sse

import (
	"net/http"
	"time"
)

const (
	// Time between keepalive comments
	pingPeriod = 30 * time.Second

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// Client represents a connected SSE client
type Client struct {
	hub         *Hub
	id          string
	send        chan []byte
	connectedAt time.Time
}

// NewClient creates a new SSE client
func NewClient(hub *Hub, id string) *Client {
	return &Client{
		hub:         hub,
		id:          id,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
	}
}

// startStream sets the SSE headers and writes the connected event
func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	// Streams outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte("event: connected\ndata: {\"status\":\"connected\"}\n\n"))
	flusher.Flush()
	return flusher, true
}

// ServeSSE streams a topic's broadcasts to one client until it disconnects
// or the hub closes
func ServeSSE(w http.ResponseWriter, r *http.Request, manager *HubManager, topic Topic, feed Feed, clientID string) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	// The hub may be swept between lookup and registration, so retry once
	// against a fresh one.
	var client *Client
	for attempt := 0; attempt < 2 && client == nil; attempt++ {
		hub := manager.GetOrCreateHub(topic, feed)
		c := NewClient(hub, clientID)
		if hub.Register(c) {
			client = c
		}
	}
	if client == nil {
		return
	}
	defer client.hub.Unregister(client)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// Stream writes every value from values as a named JSON event until the
// channel closes or the client disconnects. It serves per-client streams that
// do not share a hub.
func Stream[T any](w http.ResponseWriter, r *http.Request, eventName string, values <-chan T) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case v, ok := <-values:
			if !ok {
				return
			}
			msg, err := EncodeEvent(eventName, v)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
