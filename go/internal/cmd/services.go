package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/cuetimer/go/internal/config"
	"github.com/mcdev12/cuetimer/go/internal/room"
	"github.com/mcdev12/cuetimer/go/internal/room/gateway"
	"github.com/mcdev12/cuetimer/go/internal/room/relay"
	"github.com/mcdev12/cuetimer/go/internal/room/rpc"
)

type Services struct {
	Registry *room.Registry
	Gateway  *gateway.Service
	Rooms    *rpc.Service
	// Relay is nil unless NATS is enabled.
	Relay *relay.Publisher
}

func setupServices(ctx context.Context, cfg *config.Config, clock room.Clock) (*Services, error) {
	// Relay → Registry → Transports
	var (
		publisher *relay.Publisher
		sink      room.StateSink
	)
	if cfg.NATS.Enabled {
		p, err := relay.NewJetStreamPublisher(ctx, relayConfig(cfg.NATS))
		if err != nil {
			return nil, fmt.Errorf("failed to set up relay: %w", err)
		}
		publisher, sink = p, p
	}

	registry, err := room.NewRegistry(roomConfig(cfg.Room), clock, sink)
	if err != nil {
		if publisher != nil {
			publisher.Close()
		}
		return nil, fmt.Errorf("failed to create room registry: %w", err)
	}

	return &Services{
		Registry: registry,
		Gateway:  gateway.NewService(gateway.Config{ConnectionConfig: connectionConfig(cfg.Gateway)}, registry),
		Rooms:    rpc.NewService(registry, clock),
		Relay:    publisher,
	}, nil
}

// Close stops every room, then flushes the relay connection.
func (s *Services) Close() {
	s.Registry.Close()
	if s.Relay != nil {
		if err := s.Relay.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close relay")
		}
	}
}

func roomConfig(c config.RoomConfig) room.Config {
	return room.Config{
		TickInterval:     c.TickInterval,
		HeartbeatTimeout: c.HeartbeatTimeout,
		DisconnectGrace:  c.DisconnectGrace,
		MessageHistory:   c.MessageHistory,
		SubscriberBuffer: c.SubscriberBuffer,
		IdleTTL:          c.IdleTTL,
		SweepInterval:    c.SweepInterval,
		CodeLength:       c.CodeLength,
	}
}

func connectionConfig(c config.GatewayConfig) gateway.ConnectionConfig {
	cc := gateway.DefaultConnectionConfig()
	if c.CommandTimeout > 0 {
		cc.CommandTimeout = c.CommandTimeout
	}
	if c.PingInterval > 0 {
		cc.PingInterval = c.PingInterval
	}
	if c.MaxMessageSize > 0 {
		cc.MaxMessageSize = c.MaxMessageSize
	}
	if c.SendBuffer > 0 {
		cc.SendBuffer = c.SendBuffer
	}
	if c.RateLimit > 0 {
		cc.RateLimit = rate.Limit(c.RateLimit)
	}
	if c.RateBurst > 0 {
		cc.RateBurst = c.RateBurst
	}
	return cc
}

func relayConfig(c config.NATSConfig) relay.JetStreamConfig {
	rc := relay.DefaultJetStreamConfig()
	rc.URL = c.URL
	if c.StreamName != "" {
		rc.StreamName = c.StreamName
	}
	if c.SubjectPrefix != "" {
		rc.SubjectPrefix = c.SubjectPrefix
	}
	if c.MaxAge > 0 {
		rc.MaxAge = c.MaxAge
	}
	return rc
}
