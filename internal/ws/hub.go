package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hostwell/guildvault/internal/logging"
)

// Event is one progress message pushed to subscribers of a workspace room.
type Event struct {
	Type        string                 `json:"type"`
	WorkspaceID string                 `json:"workspaceId"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Client is one websocket subscriber attached to a workspace room.
type Client struct {
	ID   string
	Room string
	Conn *websocket.Conn
	Send chan *Event
}

// Hub fans backup progress events out to websocket subscribers. Rooms are
// keyed by workspace id; a slow subscriber gets dropped rather than
// backing up the publisher.
type Hub struct {
	rooms map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	events     chan *Event

	mu sync.RWMutex
}

// NewHub creates a hub. Call Run before publishing.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		events:     make(chan *Event, 256),
	}
}

// Run pumps registrations and events until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case event := <-h.events:
			h.fanOut(event)
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// PublishBackupEvent queues an event for every subscriber of a workspace.
// It never blocks: when the hub queue is full the event is dropped.
func (h *Hub) PublishBackupEvent(workspaceID, event string, payload map[string]interface{}) {
	e := &Event{
		Type:        event,
		WorkspaceID: workspaceID,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
	select {
	case h.events <- e:
	default:
		logging.L().Warn("ws_event_dropped", "workspace_id", workspaceID, "event", event)
	}
}

// NewClient builds a subscriber for a workspace room.
func NewClient(workspaceID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Room: workspaceID,
		Conn: conn,
		Send: make(chan *Event, 32),
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	logging.L().Debug("ws_client_joined", "client_id", client.ID, "room", client.Room, "room_size", len(h.rooms[client.Room]))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.Send)
	if len(room) == 0 {
		delete(h.rooms, client.Room)
	}

	logging.L().Debug("ws_client_left", "client_id", client.ID, "room", client.Room)
}

func (h *Hub) fanOut(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[event.WorkspaceID] {
		select {
		case client.Send <- event:
		default:
			// Subscriber can't keep up; close its queue via unregister.
			go func(c *Client) { h.Unregister <- c }(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
			client.Conn.Close()
		}
		delete(h.rooms, room)
	}
}

// WritePump streams queued events to the peer until the queue closes.
// Run it in the connection's goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump discards inbound frames and unregisters on disconnect.
func (c *Client) ReadPump(hub *Hub) {
	defer func() {
		hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
