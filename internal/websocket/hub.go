// Package websocket streams verdict events to dashboards and runs remote
// review sessions where a person resolves flagged sentences over a socket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/security"
	"go.uber.org/zap"
)

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events
	broadcast chan Event

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	config   *config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu    sync.RWMutex
	stats HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastDisconnectTime time.Time `json:"last_disconnect_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}

// NewHub creates a new WebSocket hub
func NewHub(cfg *config.WebSocketConfig, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		config:     cfg,
		upgrader:   newUpgrader(cfg),
		logger:     log.WithComponent("websocket"),
	}
}

func newUpgrader(cfg *config.WebSocketConfig) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// Run handles client registration and broadcasting until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event, nil)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.LastConnectionTime = time.Now()
	active := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_connections", active))

	if h.shouldBroadcastEvent(EventTypeConnection) {
		h.broadcastEvent(connectionEvent("connected", client), client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.stats.LastDisconnectTime = time.Now()
	active := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client disconnected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_connections", active))

	if h.shouldBroadcastEvent(EventTypeConnection) {
		h.broadcastEvent(connectionEvent("disconnected", client), nil)
	}
}

func connectionEvent(action string, client *Client) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:    action,
			ClientID:  client.ID,
			ClientIP:  client.IP,
			UserAgent: client.UserAgent,
			Message:   fmt.Sprintf("Client %s %s", client.ID, action),
		},
	}
}

// broadcastEvent sends an event to every subscribed client except skip.
// Clients whose send buffer is full are dropped.
func (h *Hub) broadcastEvent(event Event, skip *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()

	for client := range h.clients {
		if client == skip || !client.subscribed(event.Type) {
			continue
		}
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID))
			delete(h.clients, client)
			close(client.Send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (c *Client) subscribed(t EventType) bool {
	if c.Subscription == nil || len(c.Subscription.Events) == 0 {
		return true
	}
	for _, e := range c.Subscription.Events {
		if e == t {
			return true
		}
	}
	return false
}

// BroadcastEvent queues an event for all clients if its type is enabled
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)))
	}
}

// PublishReport broadcasts the outcome of a run: always a scan event, plus
// a blocked event when the document was blocked
func (h *Hub) PublishReport(requestID, documentID string, r *report.Report, elapsed time.Duration) {
	h.BroadcastEvent(Event{
		Type:      EventTypeScanCompleted,
		RequestID: requestID,
		Data: ScanEvent{
			RequestID:    requestID,
			DocumentID:   documentID,
			Document:     r.Document,
			Kind:         r.Kind,
			Status:       r.Status,
			Categories:   r.Summary.PerCategory(),
			TotalMatches: r.Summary.Total,
			ProcessingMS: float64(elapsed.Microseconds()) / 1000,
		},
	})

	if r.Blocked {
		h.BroadcastEvent(Event{
			Type:      EventTypeDocumentBlocked,
			RequestID: requestID,
			Data: BlockedEvent{
				RequestID:  requestID,
				DocumentID: documentID,
				Document:   r.Document,
				Categories: r.Categories,
				LegalBasis: r.LegalBasis,
			},
		})
	}
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if h.config == nil || !h.config.Enabled {
		return false
	}

	switch eventType {
	case EventTypeScanCompleted:
		return h.config.Events.BroadcastScans
	case EventTypeDocumentBlocked:
		return h.config.Events.BroadcastBlocks
	case EventTypeSystemStatus:
		return h.config.Events.BroadcastSystem
	case EventTypeConnection:
		return h.config.Events.BroadcastConnections
	default:
		return false
	}
}

// HandleWebSocket upgrades a dashboard connection and registers the client
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if limit := h.config.MaxConnections; limit > 0 && h.ActiveConnections() >= limit {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan Event, 256),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		IP:          security.ClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	h.register <- client

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

func (h *Hub) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingInterval(h.config))
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		h.unregister <- client
		client.Conn.Close()
	}()

	conn := client.Conn
	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		client.LastPing = time.Now()
		conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error",
					zap.String("client_id", client.ID),
					zap.Error(err))
			}
			return
		}
		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		var sub SubscriptionRequest
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			h.logger.Debug("Invalid subscription", zap.String("client_id", client.ID), zap.Error(err))
			return
		}
		h.mu.Lock()
		client.Subscription = &sub
		h.mu.Unlock()
		h.logger.Info("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.Int("events", len(sub.Events)))

	case "ping":
		h.mu.RLock()
		defer h.mu.RUnlock()
		if _, ok := h.clients[client]; !ok {
			return
		}
		select {
		case client.Send <- Event{Type: EventTypePong, Timestamp: time.Now(), Data: map[string]string{"message": "pong"}}:
		default:
		}
	}
}

func pingInterval(cfg *config.WebSocketConfig) time.Duration {
	if cfg.PingInterval > 0 {
		return cfg.PingInterval
	}
	return 54 * time.Second
}

// ActiveConnections returns the number of connected dashboard clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}
