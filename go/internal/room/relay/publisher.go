package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

type JetStreamConfig struct {
	URL            string
	StreamName     string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	MaxAge         time.Duration // How long a silent room's last state is kept
	Replicas       int
	QueueSize      int // Pending publishes before new ones are dropped
	PublishTimeout time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:            nats.DefaultURL,
		StreamName:     "CUETIMER_ROOMS",
		SubjectPrefix:  "cuetimer.rooms",
		MaxReconnects:  -1, // Infinite
		ReconnectWait:  2 * time.Second,
		MaxAge:         4 * time.Hour,
		Replicas:       1,
		QueueSize:      1024,
		PublishTimeout: 2 * time.Second,
	}
}

// msgPublisher is the part of jetstream.JetStream the publisher uses.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher relays room broadcasts into JetStream. It implements
// room.StateSink: calls never block, and publishing happens on Run.
type Publisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig
	queue  chan *nats.Msg

	published atomic.Uint64
	dropped   atomic.Uint64
}

var _ room.StateSink = (*Publisher)(nil)

// NewJetStreamPublisher connects to NATS and makes sure the relay stream
// exists.
func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*Publisher, error) {
	nc, err := connect(cfg.URL, cfg.MaxReconnects, cfg.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc
	return p, nil
}

func newPublisher(js msgPublisher, cfg JetStreamConfig) *Publisher {
	return &Publisher{
		js:     js,
		config: cfg,
		queue:  make(chan *nats.Msg, cfg.QueueSize),
	}
}

func connect(url string, maxReconnects int, reconnectWait time.Duration) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("cuetimer-relay"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// streamConfig keeps only the latest value per subject: the relay is a
// view of current room state, not a history.
func streamConfig(cfg JetStreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              cfg.StreamName,
		Description:       "Latest room snapshots and messages",
		Subjects:          []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            cfg.MaxAge,
		Storage:           jetstream.MemoryStorage,
		Replicas:          cfg.Replicas,
		Discard:           jetstream.DiscardOld,
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := streamConfig(cfg)

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas
}

// PublishState queues a snapshot for relay.
func (p *Publisher) PublishState(state models.RoomState) {
	code := state.Room.Code
	p.enqueue(StateSubject(p.config.SubjectPrefix, code), EventTypeRoomState, code, state.Version, state)
}

// PublishMessage queues a new message for relay.
func (p *Publisher) PublishMessage(code string, msg models.Message) {
	p.enqueue(MessageSubject(p.config.SubjectPrefix, code), EventTypeMessageSent, code, 0, msg)
}

func (p *Publisher) enqueue(subject, eventType, code string, version uint64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to marshal relay payload")
		return
	}
	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		RoomCode:  code,
		Version:   version,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to marshal relay envelope")
		return
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventType},
			"Room-Code":  []string{code},
			"Event-ID":   []string{env.EventID},
		},
	}
	select {
	case p.queue <- msg:
	default:
		if p.dropped.Add(1)%100 == 1 {
			log.Warn().
				Str("room_code", code).
				Uint64("dropped", p.dropped.Load()).
				Msg("relay queue full, dropping publish")
		}
	}
}

// Run publishes queued broadcasts until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	log.Info().
		Str("stream", p.config.StreamName).
		Str("subject_prefix", p.config.SubjectPrefix).
		Msg("relay publisher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Uint64("published", p.published.Load()).
				Uint64("dropped", p.dropped.Load()).
				Msg("relay publisher stopped")
			return nil
		case msg := <-p.queue:
			p.publish(ctx, msg)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	eventID := msg.Header.Get("Event-ID")
	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(eventID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("subject", msg.Subject).
			Str("event_id", eventID).
			Msg("publish to JetStream failed")
		return
	}
	p.published.Add(1)

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", eventID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
}

// Stats returns how many broadcasts were published and dropped.
func (p *Publisher) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}
