package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/room"
)

// Service is the WebSocket and HTTP face of the room registry
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	registry          *room.Registry
	startedAt         time.Time
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, registry *room.Registry) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, registry)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(registry),
		registry:          registry,
		startedAt:         time.Now(),
	}
}

// Start blocks until ctx is done, then closes every connection.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")
	<-ctx.Done()
	log.Info().Msg("room gateway service shutting down")
	s.Stop()
	return nil
}

// Stop closes every WebSocket connection.
func (s *Service) Stop() {
	s.connectionManager.CloseAll()
	log.Info().Msg("room gateway service stopped")
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.HandleFunc("GET /health", s.HandleHealth)
	log.Info().Msg("room gateway routes registered")
}

// Health is the body of GET /health.
type Health struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	UptimeSec   int64  `json:"uptime_sec"`
}

// HandleHealth handles GET /health
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetStats())
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() Health {
	return Health{
		Status:      "ok",
		Rooms:       s.registry.Len(),
		Connections: s.connectionManager.GetConnectionStats().TotalConnections,
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
	}
}
