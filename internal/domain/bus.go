package domain

import (
	"context"
)

// EventBus moves queued analysis requests to workers and verdict events
// to whoever listens for them. Messages are always published under a
// concrete tenant; subscribers may use AnyTenant to hear every tenant.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus implementation delivers. Payload is
// the JSON-encoded topic body.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus. Type is "channel" or "nats".
type EventBusConfig struct {
	Type string

	// ChannelBufferSize is the per-subscriber queue depth; full queues drop.
	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// AnyTenant subscribes to a topic across all tenants.
const AnyTenant = "*"

// Standard topic names for the analysis pipeline.
const (
	TopicAnalysisRequested = "sentinel.analysis.requested"
	TopicVerdict           = "sentinel.verdict"
	TopicAlert             = "sentinel.alert"
)

// AnalysisRequest is the payload published on TopicAnalysisRequested.
type AnalysisRequest struct {
	ID    string   `json:"id"`
	Input RawInput `json:"input"`
}

// VerdictEvent is the payload published on TopicVerdict and TopicAlert.
type VerdictEvent struct {
	AnalysisID string  `json:"analysisId"`
	TenantID   string  `json:"tenantId"`
	Subject    string  `json:"subject"`
	Verdict    Verdict `json:"verdict"`
}
