package sink

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// Writer limits used when KafkaConfig leaves them zero.
const (
	DefaultKafkaBatchSize  = 100
	DefaultKafkaBatchBytes = 1 << 20
)

// KafkaConfig tunes the kafka writer.
type KafkaConfig struct {
	Brokers          []string
	BatchSize        int
	BatchBytes       int64
	RequiredAcks     kafka.RequiredAcks
	AutoCreateTopics bool
}

// DefaultKafkaConfig waits for all in-sync replicas and lets the
// brokers create missing topics.
func DefaultKafkaConfig(brokers []string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		BatchSize:        DefaultKafkaBatchSize,
		BatchBytes:       DefaultKafkaBatchBytes,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// KafkaSink writes change records to kafka synchronously. Messages
// are partitioned by key, so changes of a row stay ordered.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink does not dial; brokers are contacted on first Publish.
func NewKafkaSink(c KafkaConfig) (*KafkaSink, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("sink: kafka needs a broker address")
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultKafkaBatchSize
	}
	if c.BatchBytes == 0 {
		c.BatchBytes = DefaultKafkaBatchBytes
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              c.BatchSize,
		BatchBytes:             c.BatchBytes,
		RequiredAcks:           c.RequiredAcks,
		AllowAutoTopicCreation: c.AutoCreateTopics,
	}}, nil
}

func (k *KafkaSink) Publish(topic, key string, value []byte) error {
	return k.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// Close flushes pending batches.
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
