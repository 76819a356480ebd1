// Package worker provides async processing of simulation lifecycle events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

// Worker persists finished simulation runs from the EventBus into the
// audit log.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	recorded atomic.Int64
	failures atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// AnalystIDs limits recording to these analysts (empty = all via the
	// global namespace)
	AnalystIDs []string
}

// recordedTopics are the terminal lifecycle events. Started events are not
// persisted since a superseded run never finishes.
var recordedTopics = []string{
	domain.TopicSimulationSucceeded,
	domain.TopicSimulationFailed,
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the lifecycle topics.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.AnalystIDs) == 0 {
		if err := w.subscribe(domain.GlobalNamespace); err != nil {
			return err
		}
		slog.Info("global recorder started")
		return nil
	}

	for _, analystID := range cfg.AnalystIDs {
		if err := w.subscribe(analystID); err != nil {
			slog.Error("failed to start recorder for analyst",
				"analyst_id", analystID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("recorders started",
		"analyst_count", len(cfg.AnalystIDs),
	)
	return nil
}

func (w *Worker) subscribe(namespace string) error {
	for _, topic := range recordedTopics {
		sub, err := w.bus.Subscribe(w.ctx, namespace, topic, w.handleMessage)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}
	return nil
}

// handleMessage persists the run carried by a lifecycle event.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event domain.SimulationEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.failures.Add(1)
		slog.Error("failed to parse simulation event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	run := event.Run
	if run.AnalystID == "" {
		w.failures.Add(1)
		return fmt.Errorf("simulation event %s has no analyst", msg.ID)
	}

	if err := w.repo.SaveSimulationRun(ctx, run.AnalystID, &run); err != nil {
		w.failures.Add(1)
		slog.Error("failed to save simulation run",
			"run_id", run.ID,
			"analyst_id", run.AnalystID,
			"error", err,
		)
		return err
	}

	w.recorded.Add(1)
	slog.Debug("simulation run recorded",
		"run_id", run.ID,
		"analyst_id", run.AnalystID,
		"status", run.Status,
	)
	return nil
}

// Stop unsubscribes every recorder. Events already delivered to a
// subscription are saved before the worker context is cancelled.
func (w *Worker) Stop() error {
	defer w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("recorders stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Recorded          int64    `json:"recorded"`
	Failures          int64    `json:"failures"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}

	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Recorded:          w.recorded.Load(),
		Failures:          w.failures.Load(),
	}
}
