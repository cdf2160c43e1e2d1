// internal/outbox/dispatcher.go
package outbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"
	"lead-funnel/internal/store"
)

const (
	DefaultClaimTTL   = 30 * time.Second
	DefaultMaxRetries = 5
	DefaultBatchSize  = 100
	DefaultInterval   = 2 * time.Second
)

// Store is the slice of the outbox repository the relay and dispatcher need.
type Store interface {
	Claim(ctx context.Context, batch int, ttl time.Duration) ([]store.OutboxEvent, error)
	ClaimByKey(ctx context.Context, key string, ttl time.Duration) (*store.OutboxEvent, error)
	MarkPublished(ctx context.Context, ev *store.OutboxEvent) error
	MarkFailed(ctx context.Context, ev *store.OutboxEvent, cause string) (int, error)
	MarkDeadLettered(ctx context.Context, ev *store.OutboxEvent, cause string) error
	PendingCount(ctx context.Context) (int, error)
}

type Settings struct {
	ClaimTTL   time.Duration
	MaxRetries int
	BatchSize  int
	Interval   time.Duration
}

func SettingsFrom(cfg config.OutboxConfig) Settings {
	s := Settings{
		ClaimTTL:   config.GetDuration(cfg.ClaimTTL),
		MaxRetries: cfg.MaxRetries,
		BatchSize:  cfg.BatchSize,
		Interval:   config.GetDuration(cfg.Interval),
	}
	if s.ClaimTTL <= 0 {
		s.ClaimTTL = DefaultClaimTTL
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	return s
}

// Dispatcher delivers claimed events to its sinks in order. The first failing
// sink stops the delivery and the event goes back to pending.
type Dispatcher struct {
	store    Store
	sinks    []Sink
	settings Settings
	logger   logger.Logger
}

func NewDispatcher(st Store, settings Settings, log logger.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		store:    st,
		sinks:    sinks,
		settings: settings,
		logger:   log.WithFields(map[string]interface{}{"component": "outbox"}),
	}
}

// DispatchKey delivers one event right after the write that produced it.
// If the relay already holds the event, or it has been delivered, there is
// nothing to do.
func (d *Dispatcher) DispatchKey(ctx context.Context, key string) error {
	ev, err := d.store.ClaimByKey(ctx, key, d.settings.ClaimTTL)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.Deliver(ctx, ev)
}

// Deliver runs the sinks for a claimed event and records the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, ev *store.OutboxEvent) error {
	decoded, err := ev.Decode()
	if err != nil {
		// A payload that does not decode will never deliver.
		d.deadLetter(ctx, ev, err.Error())
		return err
	}

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, decoded, ev.Payload); err != nil {
			cause := fmt.Sprintf("%s: %v", sink.Name(), err)
			d.fail(ctx, ev, cause)
			return fmt.Errorf("deliver %s to %s: %w", ev.IdempotencyKey, sink.Name(), err)
		}
	}

	if err := d.store.MarkPublished(ctx, ev); err != nil {
		// Sinks tolerate redelivery, so losing this write only costs a repeat.
		d.logger.Warn("failed to mark outbox event published", map[string]interface{}{
			"error":          err,
			"idempotencyKey": ev.IdempotencyKey,
		})
		return err
	}
	metrics.OutboxEvents.WithLabelValues(ev.EventType, "published").Inc()
	d.logger.Debug("outbox event published", map[string]interface{}{
		"idempotencyKey": ev.IdempotencyKey,
		"eventType":      ev.EventType,
	})
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, ev *store.OutboxEvent, cause string) {
	attempts, err := d.store.MarkFailed(ctx, ev, cause)
	if err != nil {
		d.logger.Warn("failed to release outbox claim", map[string]interface{}{
			"error":          err,
			"idempotencyKey": ev.IdempotencyKey,
		})
		return
	}
	if attempts >= d.settings.MaxRetries {
		d.deadLetter(ctx, ev, cause)
		return
	}
	metrics.OutboxEvents.WithLabelValues(ev.EventType, "retry").Inc()
	d.logger.Warn("outbox delivery failed, will retry", map[string]interface{}{
		"idempotencyKey": ev.IdempotencyKey,
		"attempts":       attempts,
		"cause":          cause,
	})
}

func (d *Dispatcher) deadLetter(ctx context.Context, ev *store.OutboxEvent, cause string) {
	metrics.OutboxEvents.WithLabelValues(ev.EventType, "dead_letter").Inc()
	if err := d.store.MarkDeadLettered(ctx, ev, cause); err != nil {
		d.logger.Error("failed to dead-letter outbox event", map[string]interface{}{
			"error":          err,
			"idempotencyKey": ev.IdempotencyKey,
		})
		return
	}
	d.logger.Error("outbox event dead-lettered, needs reconciliation", map[string]interface{}{
		"idempotencyKey": ev.IdempotencyKey,
		"eventType":      ev.EventType,
		"aggregateId":    ev.AggregateID,
		"cause":          cause,
	})
}
