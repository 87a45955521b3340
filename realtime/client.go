package realtime

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

// Authenticator extracts user ids from authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Client represents one WebSocket connection.
type Client struct {
	ID     string
	UserID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// rooms is owned by the hub loop.
	rooms map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		rooms:  make(map[string]struct{}),
	}
}

// clientCommand is what connected clients send upstream: room management only.
// Mutations travel over REST; the socket is a relay, not a write path.
type clientCommand struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type connectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and starts the read/write pumps. The
// handshake requires a bearer credential, either in the Authorization header
// or a token query parameter.
func ServeWS(hub *Hub, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		client := newClient(hub, conn, userID)
		hub.Register(client)

		// Tell the client its connection id so it can tag REST mutations
		// and be excluded from its own broadcasts.
		if greeting, err := sonic.Marshal(connectedMessage{Type: "connected", ConnectionID: client.ID}); err == nil {
			client.send <- greeting
		}

		go client.writePump()
		go client.readPump(logger)
		return nil
	}
}

// readPump consumes room commands from the connection until it closes.
func (c *Client) readPump(logger *log.Logger) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithField("conn", c.ID).Errorf("websocket read: %v", err)
			}
			break
		}
		var cmd clientCommand
		if err := sonic.Unmarshal(message, &cmd); err != nil {
			logger.WithField("conn", c.ID).Warnf("bad client command: %v", err)
			continue
		}
		switch cmd.Type {
		case "join:board":
			c.hub.Join(c, domain.BoardRoom(cmd.ID))
		case "leave:board":
			c.hub.Leave(c, domain.BoardRoom(cmd.ID))
		case "join:project":
			c.hub.Join(c, domain.ProjectRoom(cmd.ID))
		case "leave:project":
			c.hub.Leave(c, domain.ProjectRoom(cmd.ID))
		default:
			logger.WithFields(log.Fields{"conn": c.ID, "type": cmd.Type}).Warn("unknown client command")
		}
	}
}

// writePump forwards hub payloads to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
