package bus

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:19092" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"hub-events"`

	// GroupID selects the consumer group. Every gateway uses its own group so each one sees all
	// events; the webhooks service instances share one.
	GroupID string `yaml:"group_id" env:"KAFKA_GROUP_ID"`

	// BatchTimeout bounds how long Publish waits for a partial batch to fill. Every insert
	// publishes once, so this is added to write latency.
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"KAFKA_BATCH_TIMEOUT" env-default:"5ms"`
}

const DefaultBatchTimeout = 5 * time.Millisecond

// Kafka publishes events keyed by channel so a channel's events stay in one partition.
type Kafka struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	logger logrus.FieldLogger
}

func NewKafka(cfg KafkaConfig, logger logrus.FieldLogger) *Kafka {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	return &Kafka{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: cfg.BatchTimeout,
		},
		logger: logger.WithField("topic", cfg.Topic),
	}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	msg, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "unable to publish event")
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, h Handler) error {
	if k.cfg.GroupID == "" {
		return errors.New("kafka subscriber requires a group id")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		Topic:       k.cfg.Topic,
		GroupID:     k.cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	defer reader.Close()

	logger := k.logger.WithField("group", k.cfg.GroupID)
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WithError(err).Warn("Error reading event, retrying in 1s")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		e, err := decodeEvent(m)
		if err != nil {
			logger.WithError(err).Warn("Dropping malformed event")
			continue
		}
		h(ctx, e)
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func encodeEvent(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "unable to encode event")
	}
	key := e.Channel
	if key == "" {
		key = e.Webhook
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  e.Time,
	}, nil
}

func decodeEvent(m kafka.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return Event{}, errors.Wrap(err, "unable to decode event")
	}
	if e.Type == "" {
		return Event{}, errors.New("event has no type")
	}
	return e, nil
}
