// Package api provides the WebSocket and REST surface for the chat
// pipeline: live frame fan-out plus chat and history endpoints.
package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/burpheart/chatwire/internal/chatstream"
	"github.com/burpheart/chatwire/pkg/types"
)

// Hub manages WebSocket connections and broadcasts frames to all clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast chan []byte

	register   chan *Client
	unregister chan *Client
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
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
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastFrame sends a decoded frame to all connected clients.
func (h *Hub) BroadcastFrame(frame *types.Frame) {
	h.broadcastJSON(frame)
}

// BroadcastError sends a stream failure to all connected clients as an
// error-typed frame.
func (h *Hub) BroadcastError(serr *chatstream.StreamError) {
	h.broadcastJSON(map[string]interface{}{
		"event": "error",
		"data": map[string]interface{}{
			"code": serr.Code,
			"msg":  serr.Msg,
		},
	})
}

func (h *Hub) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- data:
	default:
		// Broadcast channel full, skip
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a new client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	defer func() {
		c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// Currently just handles connection close.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
