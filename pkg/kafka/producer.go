package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer writes record lifecycle events to Kafka
type Producer struct {
	writer  *kafka.Writer
	logger  ectologger.Logger
	topic   string
	brokers []string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:  writer,
		logger:  logger,
		topic:   cfg.Topic,
		brokers: cfg.Brokers,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none", "":
		return 0
	default:
		return kafka.Snappy
	}
}

// Ping succeeds when any configured broker accepts a connection
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return errors.Join(errs...)
}

// Close flushes pending messages and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RecordEvent is the payload of every record lifecycle event
type RecordEvent struct {
	EventType         string          `json:"event_type"`
	TenantID          string          `json:"tenant_id"`
	RecordID          string          `json:"record_id"`
	RecordType        string          `json:"record_type,omitempty"`
	MergeLogID        string          `json:"merge_log_id,omitempty"`
	MasterRecordID    string          `json:"master_record_id,omitempty"`
	DuplicateRecordID string          `json:"duplicate_record_id,omitempty"`
	RuleID            *string         `json:"rule_id,omitempty"`
	Reason            *string         `json:"reason,omitempty"`
	Actor             string          `json:"actor,omitempty"`
	QualityScore      *int            `json:"quality_score,omitempty"`
	Data              json.RawMessage `json:"data,omitempty"`
	SchemaVersion     string          `json:"schema_version"`
	Timestamp         time.Time       `json:"timestamp"`
}

func (p *Producer) buildMessage(event *RecordEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: p.topic,
		// keyed by record so events for one record stay ordered within a partition
		Key:   []byte(event.RecordID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "schema_version", Value: []byte(event.SchemaVersion)},
		},
	}, nil
}

// PublishRecordEvent publishes a record event to Kafka
func (p *Producer) PublishRecordEvent(ctx context.Context, event *RecordEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecordEvent")
	defer span.End()

	msg, err := p.buildMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish record event")
		tracing.RecordError(span, err)
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"record_id":  event.RecordID,
	}).Debug("Published record event")

	return nil
}
