// Package notify is the per-user notification hub behind the dashboard's
// websocket channel.  Logging out closes every connection of that user.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message types exchanged on the channel.
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeNotification = "notification"
	TypeConnected    = "connected"
)

// Event is a message sent to clients.
type Event struct {
	Type      string          `json:"type"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is a message received from a client.
type ClientMessage struct {
	Type string `json:"type"`
}

// Client is one open connection.  The hub closes Send when the client is
// removed; the writer goroutine exits on that.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte
}

// NewClient creates a client with a buffered send queue.
func NewClient(userID string) *Client {
	return &Client{ID: uuid.NewString(), UserID: userID, Send: make(chan []byte, 64)}
}

// Hub tracks connected clients by user.  All methods are safe for concurrent
// use.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}

	// OnChange, if set, is called with +1/-1 as clients come and go.
	OnChange func(delta int)
}

func NewHub() *Hub {
	return &Hub{users: make(map[string]map[*Client]struct{})}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set := h.users[c.UserID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.changed(1)
}

// Unregister removes c and closes its send queue.  Removing a client twice
// is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.users[c.UserID]
	if ok {
		_, ok = set[c]
	}
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
		close(c.Send)
	}
	h.mu.Unlock()
	if ok {
		h.changed(-1)
	}
}

// DisconnectUser removes every client of userID and returns how many were
// closed.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.Lock()
	set := h.users[userID]
	delete(h.users, userID)
	for c := range set {
		close(c.Send)
	}
	h.mu.Unlock()
	if n := len(set); n > 0 {
		h.changed(-n)
		return n
	}
	return 0
}

// Notify queues ev for every client of userID.  Clients with a full queue
// miss the event.  It returns the number of clients reached.
func (h *Hub) Notify(userID string, ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.users[userID] {
		select {
		case c.Send <- data:
			n++
		default:
		}
	}
	return n
}

// Reply queues ev for a single client, used for pong and the connected
// greeting.  It reports false when c is gone or its queue is full.
func (h *Hub) Reply(c *Client, ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.users[c.UserID][c]; !ok {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}

// UserCount returns the number of open connections of userID.
func (h *Hub) UserCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) changed(delta int) {
	if h.OnChange != nil {
		h.OnChange(delta)
	}
}
