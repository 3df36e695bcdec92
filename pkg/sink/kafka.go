package sink

import (
	"context"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/zoobzio/clockz"
)

// KafkaConfig configures a Kafka sink.
type KafkaConfig struct {
	// Brokers are the bootstrap addresses.
	Brokers []string

	// Topic receives every payload. Default: "sprout.readings".
	Topic string

	// Key is set on every message so all readings land in one partition
	// and keep their order. Default: "sprout".
	Key string
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.Topic == "" {
		c.Topic = "sprout.readings"
	}
	if c.Key == "" {
		c.Key = "sprout"
	}
	return c
}

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes payloads to a Kafka topic.
type Kafka struct {
	counters
	writer MessageWriter
	config KafkaConfig
	clock  clockz.Clock
	logger *slog.Logger
}

// NewKafkaWriter returns a synchronous writer for config.
func NewKafkaWriter(config KafkaConfig) *kafka.Writer {
	config = config.withDefaults()
	return &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
}

// NewKafka wraps writer. Pass NewKafkaWriter(config) for a real broker.
func NewKafka(writer MessageWriter, config KafkaConfig, opts ...Option) *Kafka {
	config = config.withDefaults()
	o := buildOptions("sink.kafka", opts)
	return &Kafka{
		writer: writer,
		config: config,
		clock:  clockz.RealClock,
		logger: o.logger.With("topic", config.Topic, "brokers", strings.Join(config.Brokers, ",")),
	}
}

// Send writes msg as one message.
func (k *Kafka) Send(ctx context.Context, msg []byte) error {
	if k.closed.Load() {
		return ErrClosed
	}

	// The writer may retain the value until the batch is flushed.
	value := make([]byte, len(msg))
	copy(value, msg)

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(k.config.Key),
		Value: value,
		Time:  k.clock.Now(),
	})
	if err != nil {
		return k.drop(k.logger, err)
	}
	k.delivered.Add(1)
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	if k.closed.Swap(true) {
		return nil
	}
	err := k.writer.Close()
	k.logger.Info("kafka sink closed", "delivered", k.delivered.Load(), "dropped", k.dropped.Load())
	return err
}
