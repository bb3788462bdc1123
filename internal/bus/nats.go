package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/sentinel/internal/domain"
)

const (
	subjectPrefix = "sentinel"

	// workerQueue is the queue group for work topics. Each queued
	// analysis is delivered to one worker across all instances.
	workerQueue = "sentinel-workers"

	headerTenant = "Sentinel-Tenant"
	drainTimeout = 10 * time.Second
)

// workTopics are consumed once per cluster; every other topic fans out
// to all subscribers.
var workTopics = map[string]bool{
	domain.TopicAnalysisRequested: true,
}

// NATSBus is the Pro tier EventBus. Analysis requests are load balanced
// over a queue group; verdicts and alerts fan out.
type NATSBus struct {
	mu     sync.Mutex
	conn   *nats.Conn
	subs   map[string]*natsSubscription
	closed chan struct{}
	once   sync.Once
}

type natsSubscription struct {
	id    string
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl, retrying the initial dial up to
// cfg.NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	b := &NATSBus{
		subs:   make(map[string]*natsSubscription),
		closed: make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name("sentinel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected; queued analyses are buffered until reconnect",
				"error", err,
			)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			b.once.Do(func() { close(b.closed) })
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("NATS async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var err error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		if b.conn, err = nats.Connect(cfg.NATSUrl, opts...); err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("NATS connected",
		"url", b.conn.ConnectedUrl(),
		"server_id", b.conn.ConnectedServerId(),
	)
	return b, nil
}

// Publish sends an envelope on sentinel.<tenant>.<topic>. The tenant is
// also set as a header so subscribers on the wildcard subject can route
// without decoding.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" || tenantID == domain.AnyTenant {
		return ErrTenantRequired
	}
	subject, err := makeSubject(tenantID, topic)
	if err != nil {
		return err
	}

	env := newMessage(tenantID, topic, payload)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	m := nats.NewMsg(subject)
	m.Data = data
	m.Header.Set(nats.MsgIdHdr, env.ID)
	m.Header.Set(headerTenant, tenantID)
	return b.conn.PublishMsg(m)
}

// Subscribe registers handler for topic. Work topics join the worker
// queue group. AnyTenant maps to the single-token wildcard.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	subject, err := makeSubject(tenantID, topic)
	if err != nil {
		return nil, err
	}

	cb := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping undecodable message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"tenant", m.Header.Get(headerTenant),
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var ns *nats.Subscription
	if workTopics[topic] {
		ns, err = b.conn.QueueSubscribe(subject, workerQueue, cb)
	} else {
		ns, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	sub := &natsSubscription{id: uuid.NewString(), topic: topic, sub: ns, bus: b}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub, nil
}

func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection so in-flight analyses finish and buffered
// verdicts are flushed, then waits for the connection to close.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]*natsSubscription)
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	select {
	case <-b.closed:
	case <-time.After(drainTimeout + time.Second):
		b.conn.Close()
	}
	return nil
}

// makeSubject builds sentinel.<tenant>.<topic>. The tenant must be a single subject token.
func makeSubject(tenantID, topic string) (string, error) {
	if tenantID != domain.AnyTenant && strings.ContainsAny(tenantID, ".*> \t\r\n") {
		return "", fmt.Errorf("%w: tenantID %q is not a valid subject token", ErrTenantRequired, tenantID)
	}
	return subjectPrefix + "." + tenantID + "." + topic, nil
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
