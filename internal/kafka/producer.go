package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Producer publishes triage events keyed by issue id.
type Producer struct {
	writer *kafka.Writer
	logger *logging.Logger
}

func NewProducer(cfg Config, logger *logging.Logger) *Producer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Broker),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// Publish writes ev synchronously.
func (p *Producer) Publish(ctx context.Context, ev models.TriageEvent) error {
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.EventID, err)
	}
	p.logger.Debugf("Published event %s to %s", ev.EventID, p.writer.Topic)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EncodeEvent builds the Kafka message for ev.
func EncodeEvent(ev models.TriageEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", ev.EventID, err)
	}
	key := ev.IssueID
	if key == "" {
		key = ev.EventID
	}
	return kafka.Message{Key: []byte(key), Value: value, Time: ev.Timestamp}, nil
}

// DecodeEvent parses and checks a message value.
func DecodeEvent(value []byte) (models.TriageEvent, error) {
	var ev models.TriageEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return models.TriageEvent{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if ev.EventID == "" {
		return models.TriageEvent{}, fmt.Errorf("invalid message: missing event_id")
	}
	if !models.SeverityScore(ev.Severity).Valid() {
		return models.TriageEvent{}, fmt.Errorf("invalid message: severity %d", ev.Severity)
	}
	if _, err := models.ParsePriority(string(ev.Priority)); err != nil {
		return models.TriageEvent{}, fmt.Errorf("invalid message: %w", err)
	}
	return ev, nil
}
