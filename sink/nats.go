package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsConfig holds configuration for NatsSink
type NatsConfig struct {
	URL           string
	MaxReconnects int // -1 reconnects forever
	ReconnectWait time.Duration
	MaxAge        time.Duration // retention of created streams
}

// NatsSink implements the Sink interface for NATS JetStream publishing
type NatsSink struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	maxAge time.Duration

	mu      sync.Mutex
	streams map[string]bool
}

// NewNatsSink creates a new NATS JetStream sink
func NewNatsSink(config NatsConfig) (*NatsSink, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("nats sink requires url")
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = time.Second
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	nc, err := nats.Connect(config.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js, maxAge: config.MaxAge, streams: make(map[string]bool)}, nil
}

// Publish sends a message to NATS JetStream, creating a stream for
// the topic on first use. The key is sent as header.
func (n *NatsSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}
	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (n *NatsSink) ensureStream(ctx context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.streams[topic] {
		return nil
	}
	streamName := sanitizeStreamName(topic)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    n.maxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}
	n.streams[topic] = true
	return nil
}

// Close releases resources held by the NatsSink
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// sanitizeStreamName converts a topic to a valid JetStream stream name,
// which cannot contain "." or wildcards.
func sanitizeStreamName(topic string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(topic)
}
