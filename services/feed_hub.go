package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	clientQueueSize     = 32
)

// FeedEvent is one message on the order feed: order orderId changed by action
type FeedEvent struct {
	ID        string             `json:"id"`
	OrderID   string             `json:"orderId"`
	Action    negotiation.Action `json:"action"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewFeedEvent creates a feed event stamped with now
func NewFeedEvent(orderID string, action negotiation.Action, now time.Time) FeedEvent {
	return FeedEvent{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Action:    action,
		Timestamp: now.UTC(),
	}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// FeedHub fans order events out to the websocket connections of the two
// parties of each order
type FeedHub struct {
	upgrader websocket.Upgrader

	PingInterval time.Duration
	WriteTimeout time.Duration

	mu      sync.RWMutex
	clients map[uint]map[*feedClient]struct{}
}

var feedHubInstance *FeedHub

// NewFeedHub creates a hub accepting connections from allowedOrigins.
// An empty list accepts any origin.
func NewFeedHub(allowedOrigins []string) *FeedHub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &FeedHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		PingInterval: defaultPingInterval,
		WriteTimeout: defaultWriteTimeout,
		clients:      make(map[uint]map[*feedClient]struct{}),
	}
}

// GetFeedHub returns the process-wide hub
func GetFeedHub() *FeedHub {
	return feedHubInstance
}

// SetFeedHub sets the process-wide hub
func SetFeedHub(h *FeedHub) {
	feedHubInstance = h
}

// Serve upgrades the request and streams userID's events until the client goes away
func (h *FeedHub) Serve(w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := &feedClient{conn: conn, send: make(chan []byte, clientQueueSize)}
	h.add(userID, client)
	defer h.remove(userID, client)

	// The read loop only drains control frames and notices the close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case msg := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.WriteTimeout)); err != nil {
				return err
			}
		}
	}
}

// Publish queues ev for every connection of the recipients. Slow connections
// drop events; their clients catch up on the next poll.
func (h *FeedHub) Publish(ev FeedEvent, recipients ...uint) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("feed: failed to encode event for order %s: %v", ev.OrderID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[uint]bool, len(recipients))
	for _, id := range recipients {
		if seen[id] {
			continue
		}
		seen[id] = true
		for c := range h.clients[id] {
			select {
			case c.send <- msg:
			default:
				log.Printf("feed: dropping event for user %d, queue full", id)
			}
		}
	}
}

// Connections returns the number of open connections of userID
func (h *FeedHub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client
func (h *FeedHub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			_ = c.conn.Close()
		}
	}
}

func (h *FeedHub) add(userID uint, c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*feedClient]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *FeedHub) remove(userID uint, c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[userID], c)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}
