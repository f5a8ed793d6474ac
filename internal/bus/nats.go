package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NATSBus implements EventBus using NATS.
// Used as the Pro tier event bus.
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus creates a NATS-backed event bus.
func NewNATSBus(url string) (*NATSBus, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{conn: conn}, nil
}

// Publish sends a message to a topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	msg := nats.NewMsg(b.makeSubject(tenantID, topic))
	msg.Data = payload
	msg.Header.Set("Message-Id", uuid.New().String())
	msg.Header.Set("Tenant-Id", tenantID)
	msg.Header.Set("Timestamp", fmt.Sprintf("%d", time.Now().UnixNano()))

	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return nil
}

// Subscribe registers a handler for a topic.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	natsSub, err := b.conn.Subscribe(b.makeSubject(tenantID, topic), func(m *nats.Msg) {
		msg := &domain.Message{
			ID:        m.Header.Get("Message-Id"),
			TenantID:  m.Header.Get("Tenant-Id"),
			Topic:     topic,
			Payload:   m.Data,
			Metadata:  make(map[string]string),
			Timestamp: time.Now().UnixNano(),
		}
		_ = handler(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return &natsSubscription{sub: natsSub, topic: topic}, nil
}

// Request implements request-reply via NATS.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	reply, err := b.conn.RequestWithContext(ctx, b.makeSubject(tenantID, topic), payload)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return reply.Data, nil
}

// Ping checks NATS connectivity.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS connection lost")
	}
	return nil
}

// Close closes the NATS connection.
func (b *NATSBus) Close() error {
	b.conn.Drain()
	b.conn.Close()
	return nil
}

func (b *NATSBus) makeSubject(tenantID, topic string) string {
	return fmt.Sprintf("kestrel.%s.%s", tenantID, topic)
}

type natsSubscription struct {
	sub   *nats.Subscription
	topic string
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
