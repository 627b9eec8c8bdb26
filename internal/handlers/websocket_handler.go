package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Connections are already authenticated by API key
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler serves /ws/sync
type WebSocketHandler struct {
	hub    *services.WebSocketHub
	status SyncStatusSource
}

// NewWebSocketHandler creates a new WebSocketHandler. status may be nil on
// the central server.
func NewWebSocketHandler(hub *services.WebSocketHub, status SyncStatusSource) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		status: status,
	}
}

// HandleSyncConnection upgrades to WebSocket and streams sync progress. New
// clients are subscribed to the sync topic and receive the latest sync log
// straight away.
func (h *WebSocketHandler) HandleSyncConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithContext(r.Context()).Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.Attach(uuid.New().String(), conn, services.TopicSync)
	if h.status != nil {
		h.sendCurrent(r.Context(), client)
	}
	client.Serve(h.handleMessage)
}

func (h *WebSocketHandler) sendCurrent(ctx context.Context, client *services.WSClient) {
	current, err := h.status.Status(ctx)
	if err != nil || current == nil {
		return
	}
	client.Send(services.WSMessage{
		Type:    services.WSTypeSyncStatus,
		Payload: services.NewSyncStatusPayload(current),
	})
}

func (h *WebSocketHandler) handleMessage(client *services.WSClient, msg services.WSMessage) {
	switch msg.Type {
	case services.WSTypeSubscribe, services.WSTypeUnsubscribe:
		topic, ok := msg.Payload.(string)
		if !ok || (topic != services.TopicSync && topic != services.TopicAdmin) {
			client.Send(services.WSMessage{Type: services.WSTypeError, Payload: "unknown topic"})
			return
		}
		if msg.Type == services.WSTypeSubscribe {
			h.hub.Subscribe(client, topic)
		} else {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		client.Send(services.WSMessage{Type: services.WSTypePong})

	default:
		client.Send(services.WSMessage{
			Type:    services.WSTypeError,
			Payload: "unknown message type " + msg.Type,
		})
	}
}
