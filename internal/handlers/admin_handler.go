package handlers

import (
	"context"
	"net/http"

	"github.com/supplysync/server/internal/services"
)

// MaintenanceRunner is satisfied by *services.MaintenanceService
type MaintenanceRunner interface {
	GetStatus() services.MaintenanceStatus
	RunOnce(ctx context.Context) services.MaintenanceStatus
}

// AdminHandler handles administrative endpoints
type AdminHandler struct {
	maintenance MaintenanceRunner
	hub         *services.WebSocketHub
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(maintenance MaintenanceRunner, hub *services.WebSocketHub) *AdminHandler {
	return &AdminHandler{
		maintenance: maintenance,
		hub:         hub,
	}
}

// AdminStatusResponse for GET /api/admin/status
type AdminStatusResponse struct {
	Maintenance      services.MaintenanceStatus `json:"maintenance"`
	WebSocketClients int                        `json:"webSocketClients"`
	SyncSubscribers  int                        `json:"syncSubscribers"`
}

// GetStatus returns maintenance status and connected client counts
// @Summary Get admin status
// @Tags admin
// @Produce json
// @Success 200 {object} AdminStatusResponse
// @Security ApiKeyAuth
// @Router /api/admin/status [get]
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := AdminStatusResponse{
		Maintenance: h.maintenance.GetStatus(),
	}
	if h.hub != nil {
		response.WebSocketClients = h.hub.GetClientCount()
		response.SyncSubscribers = h.hub.GetTopicSubscriberCount(services.TopicSync)
	}
	writeJSON(w, http.StatusOK, response)
}

// RunMaintenance prunes the sync buffer and sync logs now. The result is also
// published to admin topic subscribers.
// @Summary Run maintenance
// @Tags admin
// @Produce json
// @Success 200 {object} services.MaintenanceStatus
// @Security ApiKeyAuth
// @Router /api/admin/maintenance [post]
func (h *AdminHandler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	status := h.maintenance.RunOnce(r.Context())
	if h.hub != nil {
		h.hub.BroadcastToTopic(services.TopicAdmin, services.WSMessage{
			Type:    services.WSTypeMaintenance,
			Payload: status,
		})
	}
	writeJSON(w, http.StatusOK, status)
}
