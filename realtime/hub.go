package realtime

import (
	"context"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// Envelope wraps a broadcast payload with its room and the originating
// connection id. The origin never receives its own broadcast; it already
// applied the change optimistically.
type Envelope struct {
	Room    string                 `json:"room"`
	Origin  string                 `json:"origin,omitempty"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}

type subscription struct {
	client *Client
	room   string
}

// Hub maintains room membership for the active connections of this instance
// and relays envelopes to them. It carries no state beyond membership:
// delivery is at-most-once and undelivered messages are dropped, a
// reconnecting client re-fetches full board state instead.
type Hub struct {
	logger *log.Logger

	register   chan *Client
	unregister chan *Client
	join       chan subscription
	leave      chan subscription
	deliver    chan Envelope

	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub creates a hub; call Run to start its loop.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan subscription),
		leave:      make(chan subscription),
		deliver:    make(chan Envelope, 256),
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a connection and its room memberships.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Join subscribes a connection to a room.
func (h *Hub) Join(c *Client, room string) { h.join <- subscription{client: c, room: room} }

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(c *Client, room string) { h.leave <- subscription{client: c, room: room} }

// Deliver hands an envelope to the local room members. It never blocks the
// caller: when the hub's buffer is full the envelope is dropped.
func (h *Hub) Deliver(env Envelope) {
	select {
	case h.deliver <- env:
	default:
		h.logger.WithField("room", env.Room).Warn("hub delivery buffer full, dropping broadcast")
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.WithFields(log.Fields{"conn": c.ID, "user": c.UserID}).Debug("client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.WithFields(log.Fields{"conn": c.ID, "user": c.UserID}).Debug("client disconnected")
			}
		case sub := <-h.join:
			// A dropped client's read pump may still have a join in flight;
			// admitting it would broadcast into its closed send channel.
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			members, ok := h.rooms[sub.room]
			if !ok {
				members = make(map[*Client]struct{})
				h.rooms[sub.room] = members
			}
			members[sub.client] = struct{}{}
			sub.client.rooms[sub.room] = struct{}{}
		case sub := <-h.leave:
			h.removeFromRoom(sub.client, sub.room)
		case env := <-h.deliver:
			h.broadcast(env)
		}
	}
}

func (h *Hub) broadcast(env Envelope) {
	for c := range h.rooms[env.Room] {
		if env.Origin != "" && c.ID == env.Origin {
			continue
		}
		select {
		case c.send <- env.Payload:
		default:
			// Send buffer full, assume the connection is gone.
			h.logger.WithField("conn", c.ID).Warn("client send buffer full, dropping connection")
			h.drop(c)
		}
	}
}

func (h *Hub) removeFromRoom(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}
