// Package pubsub publishes archive notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// sendFunc delivers one message to topic and returns the server message id.
type sendFunc func(ctx context.Context, topic string, msg *pubsub.Message) (string, error)

// Publisher implements archive.Publisher. Topic publishers are created on
// first use and stopped by Close.
type Publisher struct {
	client *pubsub.Client
	send   sendFunc
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Publisher
	closed bool
}

// New wraps client. The caller keeps ownership of client and closes it after
// Close returns.
func New(client *pubsub.Client, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		client: client,
		logger: logger,
		topics: make(map[string]*pubsub.Publisher),
	}
	p.send = p.sendToTopic
	return p, nil
}

// Publish marshals payload to JSON and blocks until the server acknowledges it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	}
	otel.GetTextMapPropagator().Inject(ctx, attributeCarrier(msg.Attributes))

	id, err := p.send(ctx, topic, msg)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("notification published", zap.String("topic", topic), zap.String("message_id", id))
	return id, nil
}

func (p *Publisher) sendToTopic(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	pub, err := p.topicPublisher(topic)
	if err != nil {
		return "", err
	}
	return pub.Publish(ctx, msg).Get(ctx)
}

func (p *Publisher) topicPublisher(topic string) (*pubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("publisher is closed")
	}
	if pub, ok := p.topics[topic]; ok {
		return pub, nil
	}
	pub := p.client.Publisher(topic)
	p.topics[topic] = pub
	return pub, nil
}

// Close flushes and stops every topic publisher.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, pub := range p.topics {
		pub.Stop()
	}
	p.topics = nil
}

// attributeCarrier implements propagation.TextMapCarrier over message attributes.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string {
	return c[key]
}

func (c attributeCarrier) Set(key, value string) {
	c[key] = value
}

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
