package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/room"
)

// StateHandler serves room state over plain HTTP for dashboards and
// clients that only need a one-off read.
type StateHandler struct {
	registry *room.Registry
}

// NewStateHandler creates a new state handler
func NewStateHandler(registry *room.Registry) *StateHandler {
	return &StateHandler{registry: registry}
}

// HandleCreateRoom handles POST /api/rooms
func (h *StateHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.registry.CreateOrGetRoom(r.Context(), "")
	if err != nil {
		log.Error().Err(err).Msg("failed to create room")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

// HandleListRooms handles GET /api/rooms
func (h *StateHandler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Rooms(r.Context()))
}

// HandleGetRoomState handles GET /api/rooms/{code}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	actor, err := h.registry.Get(code)
	if err != nil {
		writeError(w, err)
		return
	}

	state, err := actor.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, room.ErrRoomClosed) {
			err = room.ErrRoomExpired
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms", h.HandleCreateRoom)
	mux.HandleFunc("GET /api/rooms", h.HandleListRooms)
	mux.HandleFunc("GET /api/rooms/{code}/state", h.HandleGetRoomState)
}

func httpStatus(code ErrorCode) int {
	switch code {
	case CodeRoomNotFound:
		return http.StatusNotFound
	case CodeRoomExpired:
		return http.StatusGone
	case CodeRoomClosed:
		return http.StatusServiceUnavailable
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeInvalidOperation, CodeBadRequest, CodeParticipantNotFound:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	writeJSON(w, httpStatus(code), ErrorPayload{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
