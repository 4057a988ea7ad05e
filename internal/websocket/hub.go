package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/streamvault/api/internal/model"
	"github.com/streamvault/api/internal/progress"
)

// Client represents a WebSocket client subscribed to one scope: a single
// job, or every job belonging to a user.
type Client struct {
	Scope string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections and bridges progress events
// onto them. Event fanout itself happens in the progress channel; the hub
// owns connection lifecycle and the per-socket write loop.
type Hub struct {
	// Clients grouped by scope key
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	events *progress.Channel

	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(events *progress.Channel) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     events,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Scope] == nil {
				h.clients[client.Scope] = make(map[*Client]bool)
			}
			h.clients[client.Scope][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for %s", client.Scope)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.Scope]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.Scope)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from %s", client.Scope)
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount reports the connections currently attached to a scope.
func (h *Hub) ClientCount(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scope])
}

// HandleJobConnection serves a socket that follows a single job.
func (h *Hub) HandleJobConnection(c *websocket.Conn, jobID string) {
	h.serve(c, "job:"+jobID, func(client *Client) func() {
		return h.events.SubscribeToJob(jobID, func(event model.ProgressEvent) {
			h.push(client, jobID, event)
		})
	})
}

// HandleUserConnection serves a socket that follows every job owned by a
// user.
func (h *Hub) HandleUserConnection(c *websocket.Conn, userID string) {
	h.serve(c, "user:"+userID, func(client *Client) func() {
		return h.events.SubscribeToUser(userID, func(event model.ProgressEvent) {
			h.push(client, "", event)
		})
	})
}

// push marshals one event for one client. A client that cannot keep up
// loses events rather than blocking the publisher.
func (h *Hub) push(client *Client, jobID string, event model.ProgressEvent) {
	msgType := model.WSMessageTypeProgress
	switch event.Stage {
	case model.StageCompleted:
		msgType = model.WSMessageTypeComplete
	case model.StageError:
		msgType = model.WSMessageTypeError
	}

	msg := model.WSProgressMessage{
		Type:  msgType,
		JobID: jobID,
		Event: event,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal progress message: %v", err)
		return
	}

	defer func() {
		// Send may race a concurrent close during unregister.
		_ = recover()
	}()
	select {
	case client.Send <- data:
	default:
	}
}

// serve runs the connection lifecycle: register, subscribe, writer
// goroutine, reader loop, teardown.
func (h *Hub) serve(c *websocket.Conn, scope string, subscribe func(*Client) func()) {
	client := &Client{
		Scope: scope,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	unsubscribe := subscribe(client)
	defer func() {
		unsubscribe()
		h.Unregister(client)
	}()

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
