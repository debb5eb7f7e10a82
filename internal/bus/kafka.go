package bus

import (
	"fmt"
	"strconv"
	"time"

	"reserver/internal/shared/config"
	"reserver/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaMirror republishes bus events onto a Kafka topic so external
// consumers can follow the reservation stream. It is attached to the bus
// as a regular subscriber and is entirely optional.
type KafkaMirror struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaMirror creates a mirror backed by a synchronous producer.
func NewKafkaMirror(cfg config.KafkaConfig, log *logger.Logger) (*KafkaMirror, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaMirror{
		producer: producer,
		topic:    cfg.Topic,
		log:      log,
	}, nil
}

// HandleEvent serializes the event envelope and sends it. Partitioning is
// by event type so consumers see per-type ordering.
func (m *KafkaMirror) HandleEvent(ev Event) {
	payload, err := MarshalEnvelope(ev)
	if err != nil {
		m.log.Error("kafka mirror marshal failed", "event", ev.Type, "error", err)
		return
	}

	message := &sarama.ProducerMessage{
		Topic: m.topic,
		Key:   sarama.StringEncoder(ev.Type),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(ev.Type)},
			{Key: []byte("seq"), Value: []byte(strconv.FormatUint(ev.Seq, 10))},
			{Key: []byte("producer"), Value: []byte("reserver")},
			{Key: []byte("published_at"), Value: []byte(ev.Timestamp.UTC().Format(time.RFC3339))},
		},
		Timestamp: ev.Timestamp,
	}

	partition, offset, err := m.producer.SendMessage(message)
	if err != nil {
		m.log.Error("kafka mirror send failed", "event", ev.Type, "error", err)
		return
	}

	m.log.Debug("event mirrored to kafka",
		"event", ev.Type,
		"partition", partition,
		"offset", offset,
	)
}

// Close shuts the underlying producer down.
func (m *KafkaMirror) Close() error {
	if m.producer != nil {
		if err := m.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}
