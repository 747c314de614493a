// Package outbox relays committed registry events to Kafka.
//
// Events are written to the ledger in the same transaction as the state
// change they describe. The worker polls for unprocessed events, publishes
// each one keyed by its id and marks it processed. A publish failure leaves
// the event pending for the next poll, so delivery is at least once. While
// the breaker is open the worker stops polling and lets the broker recover.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"credreg/internal/platform/kafka/producer"
	"credreg/internal/registry/models"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/circuit"
)

// Store is the outbox side of the ledger.
type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]*models.Event, error)
	MarkProcessed(ctx context.Context, eid id.EventID, at time.Time) error
	CountPending(ctx context.Context) (int64, error)
}

// Publisher delivers one message and returns once the broker has acknowledged it.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

type Worker struct {
	store        Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	drainTimeout time.Duration
	metrics      *Metrics
	breaker      *circuit.Breaker
	logger       *slog.Logger
}

type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) { w.topic = topic }
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithDrainTimeout bounds the final flush on shutdown.
func WithDrainTimeout(d time.Duration) Option {
	return func(w *Worker) { w.drainTimeout = d }
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithBreaker pauses relaying while b is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) { w.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(store Store, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topic:        "credreg.registry.events",
		batchSize:    100,
		pollInterval: 250 * time.Millisecond,
		drainTimeout: 10 * time.Second,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled, then drains what it can and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case <-ticker.C:
			w.Poll(ctx)
			w.updatePending(ctx)
		}
	}
}

// Poll relays one batch and returns how many events were published and marked.
func (w *Worker) Poll(ctx context.Context) int {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.PollDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if w.breaker != nil && !w.breaker.Allow() {
		return 0
	}

	events, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to fetch outbox events", "error", err)
			w.incFailures()
		}
		return 0
	}
	if len(events) == 0 {
		return 0
	}
	if w.metrics != nil {
		w.metrics.BatchSize.Observe(float64(len(events)))
	}

	relayed := 0
	for _, ev := range events {
		if err := w.publish(ctx, ev); err != nil {
			w.logger.Error("failed to publish outbox event",
				"event_id", ev.ID.String(),
				"event_type", string(ev.Type),
				"error", err,
			)
			w.incFailures()
			// Later events wait so consumers see them in ledger order.
			w.recordPublish(err)
			break
		}
		w.recordPublish(nil)

		err := w.store.MarkProcessed(ctx, ev.ID, time.Now())
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			// Another relay marked it first; the consumer dedupes on the key.
		case err != nil:
			w.logger.Error("failed to mark outbox event processed",
				"event_id", ev.ID.String(),
				"error", err,
			)
			continue
		}
		relayed++
		if w.metrics != nil {
			w.metrics.PublishedTotal.Inc()
		}
	}
	return relayed
}

func (w *Worker) publish(ctx context.Context, ev *models.Event) error {
	start := time.Now()
	err := w.publisher.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(ev.ID.String()),
		Value: ev.Payload,
		Headers: map[string]string{
			"event_type":     string(ev.Type),
			"aggregate_type": ev.AggregateType,
			"aggregate_id":   ev.AggregateID,
			"ledger_height":  strconv.FormatUint(ev.Height, 10),
			"actor":          ev.Actor.String(),
			"request_id":     ev.RequestID,
			"occurred_at":    ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// drain flushes pending events on shutdown. It stops once a pass relays
// nothing, so a broker outage cannot hold shutdown for the full timeout.
func (w *Worker) drain() {
	w.logger.Info("draining outbox worker")
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
			return
		}
	}
}

func (w *Worker) updatePending(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	n, err := w.store.CountPending(ctx)
	if err != nil {
		return
	}
	w.metrics.PendingDepth.Set(float64(n))
}

// recordPublish feeds the breaker and keeps the open gauge current.
func (w *Worker) recordPublish(err error) {
	if w.breaker == nil {
		return
	}
	if err == nil {
		if w.breaker.RecordSuccess().Closed {
			w.logger.Info("outbox relay resumed", "breaker", w.breaker.Name())
			w.setBreakerGauge(0)
		}
		return
	}
	if w.breaker.RecordFailure().Opened {
		w.logger.Warn("outbox relay paused after repeated publish failures", "breaker", w.breaker.Name())
		w.setBreakerGauge(1)
	}
}

func (w *Worker) setBreakerGauge(v float64) {
	if w.metrics != nil {
		w.metrics.BreakerOpen.Set(v)
	}
}

func (w *Worker) incFailures() {
	if w.metrics != nil {
		w.metrics.PublishFailures.Inc()
	}
}
