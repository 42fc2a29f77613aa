package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/pkg/logger"
)

// ClientMessage is the only thing a subscriber may send.
type ClientMessage struct {
	Type string `json:"type"` // ping
}

// Client is one websocket subscribed to one import batch.
type Client struct {
	Hub     *Hub
	Conn    *Conn
	UserID  uint
	BatchID string
	Send    chan []byte

	MessageCount  int
	LastResetTime time.Time
	RateMu        sync.Mutex
}

// NewClient wires a connection to the hub with a buffered send queue.
func NewClient(hub *Hub, conn *Conn, userID uint, batchID string) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		UserID:  userID,
		BatchID: batchID,
		Send:    make(chan []byte, 64),
	}
}

// Hub fans import events out to every client watching the batch.
type Hub struct {
	// batch id -> clients
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

type BroadcastMessage struct {
	BatchID string
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 1024),
	}
}

// Run serves the register, unregister and broadcast queues until ctx ends.
// Every client still connected then has its send queue closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for batchID, clients := range h.rooms {
				for client := range clients {
					close(client.Send)
				}
				delete(h.rooms, batchID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.BatchID]; !ok {
				h.rooms[client.BatchID] = make(map[*Client]bool)
			}
			h.rooms[client.BatchID][client] = true
			watchers := len(h.rooms[client.BatchID])
			h.mu.Unlock()
			logger.Info("Import subscriber registered", map[string]interface{}{
				"user_id":  client.UserID,
				"batch_id": client.BatchID,
				"watchers": watchers,
			})

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.rooms[message.BatchID] {
				select {
				case client.Send <- message.Message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				logger.Warn("Subscriber send buffer full, disconnecting", map[string]interface{}{
					"user_id":  client.UserID,
					"batch_id": client.BatchID,
				})
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.BatchID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, client.BatchID)
	}
	close(client.Send)

	logger.Info("Import subscriber unregistered", map[string]interface{}{
		"user_id":  client.UserID,
		"batch_id": client.BatchID,
	})
}

// PublishImportEvent implements service.ImportEventPublisher. A full queue
// drops the event; the next transition carries the current counters anyway.
func (h *Hub) PublishImportEvent(event service.ImportEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal import event", err, nil)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{BatchID: event.BatchID, Message: data}:
	default:
		logger.Warn("Broadcast channel full, event dropped", map[string]interface{}{
			"batch_id": event.BatchID,
			"state":    event.State,
		})
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Watchers reports how many clients follow the batch.
func (h *Hub) Watchers(batchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[batchID])
}

// HandleClientMessage answers pings. Anything else is ignored.
func (h *Hub) HandleClientMessage(client *Client, message []byte) {
	client.RateMu.Lock()
	now := time.Now()
	if now.Sub(client.LastResetTime) >= time.Second {
		client.MessageCount = 0
		client.LastResetTime = now
	}
	client.MessageCount++
	count := client.MessageCount
	client.RateMu.Unlock()

	if count > maxMessagesPerSecond {
		logger.Warn("Rate limit exceeded", map[string]interface{}{
			"user_id": client.UserID,
			"count":   count,
		})
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warn("Failed to parse client message", map[string]interface{}{
			"user_id": client.UserID,
			"error":   err.Error(),
		})
		return
	}

	if msg.Type == "ping" {
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.rooms[client.BatchID][client] {
			select {
			case client.Send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}
