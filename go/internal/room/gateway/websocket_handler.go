package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/presence"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleRoomConnection handles GET /ws/room.
//
// Query parameters: code (empty creates a room), name, controller,
// participant_id and token (to reconnect) and device_type.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asController := false
	if v := q.Get("controller"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid controller flag", http.StatusBadRequest)
			return
		}
		asController = b
	}

	params := JoinParams{
		Code: q.Get("code"),
		JoinRequest: presence.JoinRequest{
			ParticipantID: q.Get("participant_id"),
			Token:         q.Get("token"),
			Name:          q.Get("name"),
			DeviceType:    models.ParseDeviceType(q.Get("device_type")),
			AsController:  asController,
		},
	}

	if err := h.connectionManager.UpgradeConnection(w, r, params); err != nil {
		// The upgrader has already written an HTTP error.
		log.Error().
			Err(err).
			Str("room_code", params.Code).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
