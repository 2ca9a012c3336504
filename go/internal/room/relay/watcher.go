package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Watcher follows relayed room events from JetStream. A new watcher first
// receives the latest value of every matching subject.
type Watcher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewWatcher connects to NATS for reading the relay stream.
func NewWatcher(cfg JetStreamConfig) (*Watcher, error) {
	nc, err := connect(cfg.URL, cfg.MaxReconnects, cfg.ReconnectWait)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &Watcher{nc: nc, js: js, config: cfg}, nil
}

// FilterSubject returns the subject filter for one room, or for all rooms
// when code is empty.
func FilterSubject(prefix, code string) string {
	if code == "" {
		return prefix + ".>"
	}
	return fmt.Sprintf("%s.%s.>", prefix, code)
}

// Watch calls handle for every relayed event until ctx is done or handle
// returns an error.
func (w *Watcher) Watch(ctx context.Context, code string, handle func(Envelope) error) error {
	consumer, err := w.js.OrderedConsumer(ctx, w.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{FilterSubject(w.config.SubjectPrefix, code)},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	errCh := make(chan error, 1)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		env, err := DecodeEnvelope(msg.Data())
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("skipping malformed relay event")
			return
		}
		if err := handle(env); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// DecodeEnvelope parses a relayed event.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.EventType == "" || env.RoomCode == "" {
		return Envelope{}, fmt.Errorf("incomplete event envelope %q", env.EventID)
	}
	return env, nil
}

func (w *Watcher) Close() error {
	if w.nc != nil {
		w.nc.Close()
	}
	return nil
}
