package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 64 * 1024
	wsSendBuffer   = 64
)

// Message types
const (
	WSTypeSyncStatus  = "sync_status"
	WSTypeMaintenance = "maintenance"
	WSTypeError       = "error"
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
)

// Topics
const (
	TopicSync  = "sync"
	TopicAdmin = "admin"
)

// WSMessage is the envelope for every frame in either direction
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SyncStatusPayload is sent whenever a sync cycle changes step or progress
type SyncStatusPayload struct {
	CurrentStep models.SyncStep `json:"currentStep"`
	IsRunning   bool            `json:"isRunning"`
	Log         *models.SyncLog `json:"log"`
}

// NewSyncStatusPayload snapshots a sync log for subscribers
func NewSyncStatusPayload(l *models.SyncLog) SyncStatusPayload {
	return SyncStatusPayload{
		CurrentStep: l.CurrentStep(),
		IsRunning:   l.IsRunning(),
		Log:         l,
	}
}

type publication struct {
	topic string
	data  []byte
}

// WebSocketHub fans topic publications out to attached clients. Publishing
// never blocks; Run delivers queued publications until its context ends.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	queue   chan publication
	logger  *observability.Logger
}

// NewWebSocketHub creates an empty hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[*WSClient]struct{}),
		queue:   make(chan publication, 256),
		logger:  observability.GetLogger().WithField("component", "websocket"),
	}
}

// Run delivers publications. Every client is disconnected when ctx ends.
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.RLock()
			attached := make([]*WSClient, 0, len(h.clients))
			for c := range h.clients {
				attached = append(attached, c)
			}
			h.mu.RUnlock()
			for _, c := range attached {
				c.Close()
			}
			return

		case p := <-h.queue:
			h.deliver(p)
		}
	}
}

func (h *WebSocketHub) deliver(p publication) {
	var slow []*WSClient

	h.mu.RLock()
	for c := range h.clients {
		if _, ok := c.topics[p.topic]; !ok {
			continue
		}
		if !c.enqueue(p.data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.WithField("client", c.ID).Warn("Dropping WebSocket client with a full send buffer")
		c.Close()
	}
}

// Attach registers a connection and subscribes it to topics
func (h *WebSocketHub) Attach(id string, conn *websocket.Conn, topics ...string) *WSClient {
	c := &WSClient{
		ID:     id,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}
	for _, topic := range topics {
		c.topics[topic] = struct{}{}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithFields(map[string]interface{}{"client": id, "topics": topics}).Debug("WebSocket client attached")
	return c
}

func (h *WebSocketHub) detach(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.logger.WithField("client", c.ID).Debug("WebSocket client detached")
}

// Subscribe adds a topic to a client
func (h *WebSocketHub) Subscribe(c *WSClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.topics[topic] = struct{}{}
}

// Unsubscribe removes a topic from a client
func (h *WebSocketHub) Unsubscribe(c *WSClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.topics, topic)
}

// BroadcastToTopic queues msg for every subscriber of topic. The message is
// dropped when the queue is full.
func (h *WebSocketHub) BroadcastToTopic(topic string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Failed to encode %s message: %v", msg.Type, err)
		return
	}

	select {
	case h.queue <- publication{topic: topic, data: data}:
	default:
		h.logger.WithField("topic", topic).Warnf("Publication queue full, dropping %s message", msg.Type)
	}
}

// BroadcastSyncStatus publishes a sync log snapshot to sync subscribers
func (h *WebSocketHub) BroadcastSyncStatus(l *models.SyncLog) {
	h.BroadcastToTopic(TopicSync, WSMessage{Type: WSTypeSyncStatus, Payload: NewSyncStatusPayload(l)})
}

// GetClientCount returns the number of attached clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetTopicSubscriberCount returns the number of clients subscribed to topic
func (h *WebSocketHub) GetTopicSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if _, ok := c.topics[topic]; ok {
			n++
		}
	}
	return n
}

// WSClient is one attached connection
type WSClient struct {
	ID string

	conn      *websocket.Conn
	hub       *WebSocketHub
	send      chan []byte
	done      chan struct{}
	topics    map[string]struct{} // guarded by hub.mu
	closeOnce sync.Once
}

func (c *WSClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Send queues msg for this client only. It reports false when the message
// was dropped.
func (c *WSClient) Send(msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

// Close detaches the client and closes its connection. It is safe to call
// more than once.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.detach(c)
		c.conn.Close()
	})
}

// Serve runs the connection until it closes. Text frames are decoded and
// passed to onMessage on the calling goroutine.
func (c *WSClient) Serve(onMessage func(c *WSClient, msg WSMessage)) {
	go c.writeLoop()
	defer c.Close()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		frameType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithField("client", c.ID).Warnf("WebSocket read failed: %v", err)
			}
			return
		}
		if frameType != websocket.TextMessage {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(WSMessage{Type: WSTypeError, Payload: "invalid message: " + err.Error()})
			continue
		}
		if onMessage != nil {
			onMessage(c, msg)
		}
	}
}

func (c *WSClient) writeLoop() {
	ping := time.NewTicker(wsPingInterval)
	defer func() {
		ping.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
