package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/presence"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

// ConnectionManager manages WebSocket connections to rooms
type ConnectionManager struct {
	// Connection pools organized by room code
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	registry *room.Registry
}

// Connection is one device's WebSocket, bound to a single participant.
type Connection struct {
	ID            string
	ParticipantID string
	RoomCode      string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time

	actor   *room.Actor
	token   string
	seq     uint64
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	sendMu sync.Mutex
	closed bool
	// left is set when the participant asked to leave, so the read loop
	// does not mark it disconnected on the way out.
	left atomic.Bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	// RateLimit and RateBurst bound client frames per connection.
	RateLimit   rate.Limit
	RateBurst   int
	CheckOrigin func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  5 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		RateLimit:       20,
		RateBurst:       40,
		CheckOrigin: func(r *http.Request) bool {
			// Displays may be served from any origin
			return true
		},
	}
}

// JoinParams is what a device supplies when it connects.
type JoinParams struct {
	Code string
	presence.JoinRequest
}

// ConnectionStats is a point-in-time view of the connection pools.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, registry *room.Registry) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		registry: registry,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins the
// room. A failed join is reported to the device as an error frame before
// the socket is closed.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, params JoinParams) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(cm.config.RateLimit, cm.config.RateBurst),
		ctx:         ctx,
		cancel:      cancel,
	}
	// Frames queue up in Send until the pumps start.
	if err := c.join(params); err != nil {
		log.Info().
			Err(err).
			Str("connection_id", c.ID).
			Str("room_code", params.Code).
			Msg("WebSocket join rejected")
		c.sendError("", err)
		c.closeSend()
		go c.writePump()
		return nil
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("participant_id", c.ParticipantID).
		Str("room_code", c.RoomCode).
		Msg("WebSocket connection established")
	return nil
}

func (c *Connection) join(params JoinParams) error {
	cm := c.Manager
	ctx, cancel := context.WithTimeout(c.ctx, cm.config.CommandTimeout)
	defer cancel()

	actor, sess, state, err := cm.registry.JoinRoom(ctx, params.Code, params.JoinRequest)
	if err != nil {
		return err
	}
	c.actor = actor
	c.ParticipantID = sess.ID
	c.token = sess.Token
	c.seq = sess.Seq
	c.RoomCode = actor.Code()

	states, err := actor.Subscribe(c.ctx)
	if err != nil {
		return err
	}
	msgs, err := actor.SubscribeMessages(c.ctx)
	if err != nil {
		states.Close()
		return err
	}

	cm.registerConnection(c)
	c.sendEvent(EventTypeRoomJoined, "", JoinedPayload{Participant: sess.Participant, Token: sess.Token, State: state})

	seen := make(map[string]bool, len(state.Messages))
	for _, m := range state.Messages {
		seen[m.ID] = true
	}
	go c.forward(states, msgs, seen, state.Version)
	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomCode] == nil {
		cm.roomConnections[conn.RoomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomCode][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_code", conn.RoomCode).
		Int("total_connections", len(cm.roomConnections[conn.RoomCode])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.roomConnections[conn.RoomCode]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomCode)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Str("room_code", conn.RoomCode).
				Msg("connection unregistered")
		}
	}
	conn.closeSend()
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{RoomConnections: make(map[string]int, len(cm.roomConnections))}
	for code, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[code] = len(connections)
	}
	stats.ActiveRooms = len(cm.roomConnections)
	return stats
}

// CloseAll closes every connection. Participants are marked disconnected
// by their read loops and can rejoin another instance.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.roomConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.closeSend()
	}
	log.Info().Int("connections", len(all)).Msg("all WebSocket connections closed")
}

// enqueue hands a frame to the write pump. A connection that cannot keep up
// is closed.
func (c *Connection) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID).
			Msg("connection send buffer full, closing connection")
		c.closed = true
		close(c.Send)
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Connection) sendEvent(typ EventType, requestID string, payload any) {
	data, err := encodeEvent(typ, requestID, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event")
		return
	}
	c.enqueue(data)
}

func (c *Connection) sendError(requestID string, err error) {
	c.sendErrorCode(requestID, errorCode(err), err.Error())
}

func (c *Connection) sendErrorCode(requestID string, code ErrorCode, message string) {
	c.sendEvent(EventTypeError, requestID, ErrorPayload{Code: code, Message: message})
}

// forward copies room broadcasts onto the socket until the connection or
// the room goes away. The subscription's first snapshot is dropped when it
// is the version the joined frame already carried.
func (c *Connection) forward(states *room.Subscription[models.RoomState], msgs *room.Subscription[models.Message], seen map[string]bool, joinedVersion uint64) {
	msgCh := msgs.C
	first := true
	for {
		select {
		case <-c.ctx.Done():
			return
		case state, ok := <-states.C:
			if !ok {
				if c.ctx.Err() == nil {
					c.sendErrorCode("", CodeRoomExpired, "room is no longer available")
					c.closeSend()
				}
				return
			}
			if first {
				first = false
				if state.Version == joinedVersion {
					continue
				}
			}
			c.sendEvent(EventTypeRoomState, "", state)
		case msg, ok := <-msgCh:
			if !ok {
				msgCh = nil
				continue
			}
			if seen[msg.ID] {
				delete(seen, msg.ID)
				continue
			}
			c.sendEvent(EventTypeMessageNew, "", msg)
		}
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
		c.cancel()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.cancel()
		if !c.left.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.CommandTimeout)
			if err := c.actor.MarkDisconnected(ctx, c.ParticipantID, c.seq); err != nil && !room.IsGone(err) {
				log.Warn().Err(err).Str("participant_id", c.ParticipantID).Msg("failed to mark participant disconnected")
			}
			cancel()
		}
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.heartbeat()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) heartbeat() {
	ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.CommandTimeout)
	defer cancel()
	if err := c.actor.Heartbeat(ctx, c.ParticipantID, c.token); err != nil && !room.IsGone(err) && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("participant_id", c.ParticipantID).Msg("heartbeat failed")
	}
}

// handleClientMessage processes messages received from the client
func (c *Connection) handleClientMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.sendErrorCode("", CodeBadRequest, "malformed frame")
		return
	}
	if !c.limiter.Allow() {
		c.sendErrorCode(env.RequestID, CodeRateLimited, "too many requests")
		return
	}

	switch env.Type {
	case EventTypePing:
		c.heartbeat()
		c.sendEvent(EventTypePong, env.RequestID, PongPayload{ServerTime: time.Now().UTC()})

	case EventTypeOp:
		var op room.Operation
		if err := json.Unmarshal(env.Payload, &op); err != nil {
			c.sendErrorCode(env.RequestID, CodeBadRequest, "malformed operation")
			return
		}
		// A connection speaks only for its own participant.
		op.ParticipantID = c.ParticipantID
		op.Token = c.token

		ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.CommandTimeout)
		state, err := c.actor.Apply(ctx, op)
		cancel()
		if err != nil {
			c.sendError(env.RequestID, err)
			return
		}
		c.sendEvent(EventTypeAck, env.RequestID, AckPayload{Version: state.Version})

	case EventTypeLeave:
		c.left.Store(true)
		ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.CommandTimeout)
		err := c.actor.Leave(ctx, c.ParticipantID, c.token)
		cancel()
		if err != nil && !room.IsGone(err) {
			log.Warn().Err(err).Str("participant_id", c.ParticipantID).Msg("leave failed")
		}
		c.closeSend()

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("event_type", string(env.Type)).
			Msg("unknown client frame")
		c.sendErrorCode(env.RequestID, CodeBadRequest, fmt.Sprintf("unknown frame type %q", env.Type))
	}
}
