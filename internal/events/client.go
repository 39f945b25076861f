package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"licenselock/internal/keygen"
)

const (
	// writeWait bounds a single message write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long a peer may go silent before the read side
	// gives up. Pings go out at 90% of this.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize caps inbound frames; the feed is one-directional
	// so clients have nothing large to say.
	maxMessageSize = 512
	// sendBuffer is the per-client outbound queue. Overflow drops the
	// client.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin policy is enforced by the session check in front of
	// the upgrade, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client pumps hub broadcasts onto one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id          string
	remoteAddr  string
	connectedAt time.Time
	logger      *slog.Logger
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          keygen.ID(),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}
	client.logger = h.logger.With(slog.String("client_id", client.id))

	h.register <- client
	go client.writePump()
	go client.readPump()
}

// readPump drains and discards inbound frames, keeping the connection's
// control-frame handling alive until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump forwards queued messages to the peer and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
