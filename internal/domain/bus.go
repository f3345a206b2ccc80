package domain

import (
	"context"
)

// EventBus defines the interface for asynchronous assessment traffic.
// Backed by Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes a message and waits for a reply.
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Reply answers a message received from Request.
	Reply(ctx context.Context, msg *Message, payload []byte) error

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope carried on the bus.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	ReplyTo   string            `json:"replyTo,omitempty"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channel_buffer_size"`

	NATSUrl           string `json:"natsUrl" mapstructure:"nats_url"`
	NATSToken         string `json:"-" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup spreads submissions across replicas so each is assessed once.
	NATSQueueGroup string `json:"natsQueueGroup" mapstructure:"nats_queue_group"`
}

// Assessment pipeline topics.
const (
	TopicProfileSubmitted = "kestrel.profile.submitted"
	TopicProfileAssessed  = "kestrel.profile.assessed"
	TopicProfileAlert     = "kestrel.profile.alert"
)

// Submission is the payload published on TopicProfileSubmitted.
type Submission struct {
	ID      string       `json:"submission_id"`
	Profile ProfileInput `json:"profile"`
}

// SubmissionResult is the payload published on TopicProfileAssessed and TopicProfileAlert.
type SubmissionResult struct {
	ID         string          `json:"submission_id"`
	Assessment *RiskAssessment `json:"assessment,omitempty"`
	Error      string          `json:"error,omitempty"`
}
