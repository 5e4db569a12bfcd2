package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

// EventQueue receives decoded events; *alerts.Service satisfies it.
type EventQueue interface {
	QueueEvent(ev models.TriageEvent) bool
}

type Consumer struct {
	reader *kafka.Reader
	queue  EventQueue
	logger *logging.Logger
}

func NewConsumer(cfg Config, queue EventQueue, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.Discard()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: r, queue: queue, logger: logger}
}

// Start reads messages until ctx is cancelled.
func (s *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Infof("Kafka consumer started on topic %s", s.reader.Config().Topic)

		for {
			msg, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					s.logger.Infof("Kafka consumer stopped")
					return
				}
				s.logger.Errorf("Read message failed: %v", err)
				continue
			}
			s.handle(msg)
		}
	}()
}

func (s *Consumer) handle(msg kafka.Message) {
	ev, err := DecodeEvent(msg.Value)
	if err != nil {
		s.logger.Errorf("Skipping message at offset %d: %v", msg.Offset, err)
		return
	}
	s.queue.QueueEvent(ev)
	s.logger.Debugf("Processed Kafka message %s", ev.EventID)
}

func (s *Consumer) Close() error {
	return s.reader.Close()
}
