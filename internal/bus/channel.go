// Package bus carries asynchronous assessment traffic between the API and
// the worker.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrNotQueued is returned when a submission reaches no worker, either
// because none is subscribed or every worker queue is full.
var ErrNotQueued = errors.New("submission not queued")

// ChannelBus is the in-process EventBus of the community tier. Events fan out
// to every subscriber without blocking the publisher; a subscriber whose
// buffer is full misses the event. Submissions are the exception: publishing
// one fails with ErrNotQueued unless at least one worker accepted it.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string]map[*channelSubscription]struct{}
	closed        bool
}

type channelSubscription struct {
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus returns a bus whose subscribers buffer bufferSize messages.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string]map[*channelSubscription]struct{}),
	}
}

// Publish sends payload to every subscriber of topic.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.deliver(newMessage(topic, "", payload))
}

func (b *ChannelBus) deliver(msg *domain.Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("topic is required")
	}

	// Inboxes are never closed, so sending under the read lock is safe
	// against a concurrent Unsubscribe or Close.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	accepted := 0
	for sub := range b.subscriptions[msg.Topic] {
		select {
		case sub.inbox <- msg:
			accepted++
		default:
		}
	}

	if accepted == 0 && msg.Topic == domain.TopicProfileSubmitted {
		return ErrNotQueued
	}
	return nil
}

// Subscribe runs handler for each message on topic in its own goroutine until
// ctx is done or the subscription is cancelled.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	if b.subscriptions[topic] == nil {
		b.subscriptions[topic] = make(map[*channelSubscription]struct{})
	}
	b.subscriptions[topic][sub] = struct{}{}

	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			_ = s.handler(s.ctx, msg)
		}
	}
}

// Request publishes to topic and waits for the first reply on a private
// reply topic.
func (b *ChannelBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	replies := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()

	sub, err := b.Subscribe(ctx, replyTopic, func(_ context.Context, msg *domain.Message) error {
		select {
		case replies <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.deliver(newMessage(topic, replyTopic, payload)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(requestTimeout(ctx))
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request on %s timed out", topic)
	}
}

// Reply answers a message received through Request.
func (b *ChannelBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	if msg == nil || msg.ReplyTo == "" {
		return fmt.Errorf("message has no reply subject")
	}
	return b.deliver(newMessage(msg.ReplyTo, "", payload))
}

// Ping reports ErrBusClosed after Close.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	return nil
}

// Close stops every subscription. Further operations return ErrBusClosed.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscriptions {
		for sub := range subs {
			sub.cancel()
		}
	}
	b.subscriptions = make(map[string]map[*channelSubscription]struct{})
	return nil
}

// Unsubscribe stops delivery. Messages still buffered are discarded.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscriptions[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.subscriptions, s.topic)
		}
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
