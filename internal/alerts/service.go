package alerts

import (
	"context"
	"encoding/json"
	"sync"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

// Notifier delivers an alert through one outside channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev models.TriageEvent) error
}

// Config sizes the worker pool.
type Config struct {
	QueueSize   int
	MaxWorkers  int
	MinPriority models.Priority
}

// Service fans urgent triage events out to websocket subscribers and
// notifiers on a bounded pool of workers.
type Service struct {
	logger    *logging.Logger
	config    Config
	events    chan models.TriageEvent
	ctx       context.Context
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
	hub       *Hub
	notifiers []Notifier
}

// New constructs a Service. Call Start to launch the workers.
func New(cfg Config, hub *Hub, logger *logging.Logger, notifiers ...Notifier) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.MinPriority == "" {
		cfg.MinPriority = models.PriorityHigh
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:    logger,
		config:    cfg,
		events:    make(chan models.TriageEvent, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		hub:       hub,
		notifiers: notifiers,
	}
}

// Hub returns the subscriber hub served on the websocket route.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Start launches the worker pool
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the workers and disconnects websocket subscribers. In-flight
// notifier sends are aborted.
func (s *Service) Stop() {
	s.cancel()
	s.hub.Close()
}

// QueueEvent enqueues ev if it is urgent enough. It never blocks: when the
// queue is full the event is dropped. It reports whether ev was queued.
func (s *Service) QueueEvent(ev models.TriageEvent) bool {
	if !ev.Priority.AtLeast(s.config.MinPriority) {
		s.logger.Debugf("Skipping event %s with priority %s", ev.EventID, ev.Priority)
		return false
	}
	select {
	case s.events <- ev:
		s.logger.Infof("Queued alert: event_id=%s priority=%s", ev.EventID, ev.Priority)
		return true
	default:
		s.logger.Errorf("Queue full, dropping alert: event_id=%s", ev.EventID)
		return false
	}
}

// Publish lets the service stand in for a Kafka producer when none is
// configured.
func (s *Service) Publish(_ context.Context, ev models.TriageEvent) error {
	s.QueueEvent(ev)
	return nil
}

// worker processes events until context is cancelled
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Service) handleEvent(ev models.TriageEvent) {
	message, err := json.Marshal(ev)
	if err != nil {
		s.logger.Errorf("Failed to encode alert %s: %v", ev.EventID, err)
		return
	}
	s.hub.Broadcast(message)

	for _, n := range s.notifiers {
		final := "success"
		if err := n.Notify(s.ctx, ev); err != nil {
			final = "failed"
			s.logger.Errorf("Dispatch error via %s: %v", n.Name(), err)
		}
		s.logger.Infof("Alert %s dispatched %s via %s", ev.EventID, final, n.Name())
	}
}
