// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"ScreenRadar/pkg/model"
)

const (
	// MatchesStream JetStream stream holding match events
	MatchesStream = "WATCH_MATCHES"
	// MatchesSubjects every watch publishes under watch.matches.<watchlist id>
	MatchesSubjects = "watch.matches.*"
)

// MatchesSubject subject of one watchlist
func MatchesSubject(watchlistID string) string {
	return "watch.matches." + watchlistID
}

// NATSClient JetStream publisher and consumer of match events
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.ConsumeContext
	mu        sync.Mutex
}

// MessageHandler handles one message payload; an error naks it.
type MessageHandler func(data []byte) error

func NewNATSClient(natsURL string, log zerolog.Logger) (*NATSClient, error) {
	log = log.With().Str("component", "nats").Logger()

	nc, err := nats.Connect(natsURL,
		nats.Name("screenradar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &NATSClient{
		conn:      nc,
		jetStream: js,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.ConsumeContext),
	}

	if err := c.setupStreams(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *NATSClient) setupStreams() error {
	cfg := jetstream.StreamConfig{
		Name:        MatchesStream,
		Subjects:    []string{MatchesSubjects},
		Description: "watchlist match events",
		Retention:   jetstream.LimitsPolicy,
		MaxMsgs:     50000,
		MaxBytes:    50 * 1024 * 1024,
		MaxAge:      7 * 24 * time.Hour,
	}
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	if _, err := c.jetStream.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}
	c.log.Debug().Str("stream", cfg.Name).Msg("stream ready")
	return nil
}

// Publish marshals data to JSON unless it already is raw bytes.
func (c *NATSClient) Publish(ctx context.Context, subject string, data any) error {
	var payload []byte
	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", subject, err)
		}
	}

	if _, err := c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	c.log.Debug().Str("subject", subject).Int("bytes", len(payload)).Msg("published")
	return nil
}

// PublishMatches publishes the event of one evaluated watchlist.
func (c *NATSClient) PublishMatches(ctx context.Context, ev model.MatchEvent) error {
	return c.Publish(ctx, MatchesSubject(ev.WatchlistID), ev)
}

// Subscribe consumes filterSubject from the matches stream. An empty
// consumer name creates an ephemeral consumer.
func (c *NATSClient) Subscribe(consumerName, filterSubject string, handler MessageHandler) error {
	cfg := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}
	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, MatchesStream, cfg)
	if err != nil {
		return fmt.Errorf("create consumer %q: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			c.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("handler failed")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", filterSubject, err)
	}

	key := consumerName
	if key == "" {
		key = fmt.Sprintf("ephemeral-%p", cc)
	}
	c.mu.Lock()
	c.consumers[key] = cc
	c.mu.Unlock()

	c.log.Info().Str("subject", filterSubject).Str("consumer", key).Msg("subscribed")
	return nil
}

// SubscribeMatches decodes match events for every watchlist.
func (c *NATSClient) SubscribeMatches(consumerName string, handle func(model.MatchEvent) error) error {
	return c.Subscribe(consumerName, MatchesSubjects, func(data []byte) error {
		var ev model.MatchEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// acked anyway: a payload that never decodes must not be redelivered
			c.log.Warn().Err(err).Msg("dropping undecodable match event")
			return nil
		}
		return handle(ev)
	})
}

func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close stops every consumer and drains the connection.
func (c *NATSClient) Close() error {
	c.cancel()

	c.mu.Lock()
	for name, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, name)
	}
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
			return err
		}
	}
	c.log.Info().Msg("nats connection closed")
	return nil
}
