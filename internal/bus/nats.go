package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// NATSBus is the pro tier EventBus. Topics are used verbatim as subjects.
// Subscriptions to TopicProfileSubmitted join the configured queue group, so
// replicas share the submission stream while every replica still sees
// assessed and alert events.
type NATSBus struct {
	mu    sync.Mutex
	conn  *nats.Conn
	queue string
	subs  map[*natsSubscription]struct{}
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to NATS. A server that is down at startup is retried in
// the background up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	maxReconnects := cfg.NATSMaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait == 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(wait),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS error", "error", err, "subject", subject)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	slog.Info("NATS connecting",
		"url", url,
		"connected", conn.IsConnected(),
		"queue_group", cfg.NATSQueueGroup,
	)

	return &NATSBus{
		conn:  conn,
		queue: cfg.NATSQueueGroup,
		subs:  make(map[*natsSubscription]struct{}),
	}, nil
}

// Publish wraps payload in a Message envelope and publishes it on topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(newMessage(topic, "", payload))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.conn.Publish(topic, data)
}

// Subscribe delivers messages on topic to handler. The NATS reply inbox, if
// any, is exposed as Message.ReplyTo.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	cb := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("failed to unmarshal NATS message", "subject", m.Subject, "error", err)
			return
		}
		if m.Reply != "" {
			msg.ReplyTo = m.Reply
		}
		if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error", "subject", m.Subject, "message_id", msg.ID, "error", err)
		}
	}

	var (
		ns  *nats.Subscription
		err error
	)
	if topic == domain.TopicProfileSubmitted && b.queue != "" {
		ns, err = b.conn.QueueSubscribe(topic, b.queue, cb)
	} else {
		ns, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &natsSubscription{topic: topic, sub: ns, bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Request publishes on topic and waits for one reply on a NATS inbox.
func (b *NATSBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	data, err := json.Marshal(newMessage(topic, "", payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	reply, err := b.conn.Request(topic, data, requestTimeout(ctx))
	if err != nil {
		return nil, fmt.Errorf("request on %s failed: %w", topic, err)
	}

	var env domain.Message
	if err := json.Unmarshal(reply.Data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	return env.Payload, nil
}

// Reply answers a message received through Request.
func (b *NATSBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	if msg == nil || msg.ReplyTo == "" {
		return fmt.Errorf("message has no reply subject")
	}
	data, err := json.Marshal(newMessage(msg.ReplyTo, "", payload))
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	return b.conn.Publish(msg.ReplyTo, data)
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains in-flight messages before closing, so submissions already
// delivered to the worker are still assessed.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
