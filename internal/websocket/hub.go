package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"finsight/internal/infrastructure"
)

// Message types sent by the hub in addition to operation events
const (
	TypeConnection = "connection"
)

// broadcastQueueSize bounds the messages waiting for the hub loop
const broadcastQueueSize = 256

// Message is the envelope every client receives
type Message struct {
	Type      string      `json:"type"`
	Step      string      `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

type outbound struct {
	eventType string
	payload   []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics

	totalConnections int64
	messagesSent     int64
	droppedClients   int64

	quit     chan struct{}
	running  bool
	stopOnce sync.Once
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Hub {
	return &Hub{
		broadcast:  make(chan outbound, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		metrics:    metrics,
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "client_unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	select {
	case <-h.quit:
		h.mu.Unlock()
		close(client.send)
		return
	default:
	}
	h.clients[client] = true
	count := len(h.clients)
	h.totalConnections++
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordWebSocketClientChange(ctx, 1)
	h.logger.InfoContext(ctx, "client_registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	payload, err := json.Marshal(Message{
		Type: TypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.id,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		TraceID:   client.traceID,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.logger.WarnContext(ctx, "connection message dropped", slog.String("client_id", client.id))
	}
}

// removeClient closes the client's send channel once
func (h *Hub) removeClient(client *Client, event string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordWebSocketClientChange(ctx, -1)
	h.logger.InfoContext(ctx, event,
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

func (h *Hub) deliver(msg outbound) {
	// sends are non-blocking, so holding the read lock keeps Stop from
	// closing a channel mid-send
	var slow []*Client
	delivered := 0
	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- msg.payload:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.removeClient(client, "client_send_buffer_full")
	}
	dropped := len(slow)

	h.mu.Lock()
	h.messagesSent += int64(delivered)
	h.droppedClients += int64(dropped)
	h.mu.Unlock()

	h.metrics.RecordWebSocketBroadcast(context.Background(), msg.eventType, delivered, dropped)
	h.logger.Debug("broadcast delivered",
		slog.String("type", msg.eventType),
		slog.Int("delivered", delivered),
		slog.Int("dropped", dropped),
		slog.Int("payload_size", len(msg.payload)))
}

// BroadcastUpdate sends an event to all connected clients. It never blocks
// the caller: when the hub is stopped or its queue is full the event is dropped.
func (h *Hub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.BroadcastUpdateWithTrace(eventType, step, status, metadata, "")
}

// BroadcastUpdateWithTrace sends an event carrying a trace ID
func (h *Hub) BroadcastUpdateWithTrace(eventType, step, status string, metadata interface{}, traceID string) {
	payload, err := json.Marshal(Message{
		Type:      eventType,
		Step:      step,
		Status:    status,
		Data:      metadata,
		Timestamp: time.Now().Format(time.RFC3339),
		TraceID:   traceID,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case <-h.quit:
		return
	default:
	}
	select {
	case h.broadcast <- outbound{eventType: eventType, payload: payload}:
	default:
		h.logger.Warn("broadcast queue full, event dropped", slog.String("type", eventType))
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)

		h.mu.Lock()
		defer h.mu.Unlock()
		h.running = false
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
	})
}

// GetHubMetrics returns current hub counters
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"dropped_clients":   h.droppedClients,
		"broadcast_queue":   len(h.broadcast),
	}
}
