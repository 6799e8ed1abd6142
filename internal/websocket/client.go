package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"finsight/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBufferSize = 256
)

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger
}

// NewClient creates a client for an established connection
func NewClient(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	id := uuid.New().String()
	logger = infrastructure.WithComponent(logger, "websocket.client").With(slog.String("client_id", id))
	if traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// ID returns the client identifier
func (c *Client) ID() string {
	return c.id
}

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

// ReadPump reads until the peer goes away. Clients only send heartbeats;
// anything else is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WarnContext(c.context(), "unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// WritePump writes hub messages and pings to the connection. Each message
// is its own frame.
func (c *Client) WritePump() {
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
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.DebugContext(c.context(), "websocket write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.context(), "websocket ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// Handler upgrades HTTP requests to websocket clients of hub
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	base     *slog.Logger
	logger   *slog.Logger
}

// NewHandler creates the /ws handler. checkOrigin may be nil to accept
// same-host requests only.
func NewHandler(hub *Hub, checkOrigin func(r *http.Request) bool, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		base:   logger,
		logger: infrastructure.WithComponent(logger, "websocket.handler"),
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(h.hub, NewConnectionWrapper(conn), infrastructure.GetTraceID(r.Context()), h.base)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
