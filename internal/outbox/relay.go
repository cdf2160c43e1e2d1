// internal/outbox/relay.go
package outbox

import (
	"context"
	"time"

	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"
	"lead-funnel/internal/common/observability"
)

// Relay drains the outbox on a fixed interval. Several relays may run against
// the same table; claims keep them off each other's rows.
type Relay struct {
	store      Store
	dispatcher *Dispatcher
	settings   Settings
	obs        *observability.Observability
	logger     logger.Logger
}

func NewRelay(st Store, dispatcher *Dispatcher, settings Settings, obs *observability.Observability, log logger.Logger) *Relay {
	return &Relay{
		store:      st,
		dispatcher: dispatcher,
		settings:   settings,
		obs:        obs,
		logger:     log.WithFields(map[string]interface{}{"component": "outbox-relay"}),
	}
}

// Run ticks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.settings.Interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", map[string]interface{}{
		"interval":  r.settings.Interval.String(),
		"batchSize": r.settings.BatchSize,
	})
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped", nil)
			return
		case <-ticker.C:
			if _, err := r.ProcessOnce(ctx); err != nil {
				r.logger.Warn("outbox relay tick failed", map[string]interface{}{"error": err})
			}
		}
	}
}

// ProcessOnce claims one batch and delivers it in creation order. It returns
// how many events were published.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	start := time.Now()
	ctx, span := r.obs.StartSpan(ctx, "outbox.relay")
	defer span.End()

	events, err := r.store.Claim(ctx, r.settings.BatchSize, r.settings.ClaimTTL)
	if err != nil {
		r.obs.RecordOperation(ctx, "outbox.relay", "error", time.Since(start))
		return 0, err
	}
	metrics.OutboxPending.Set(float64(len(events)))

	published := 0
	for i := range events {
		if ctx.Err() != nil {
			break
		}
		// Failures are recorded per event and do not stop the batch.
		if err := r.dispatcher.Deliver(ctx, &events[i]); err == nil {
			published++
		}
	}
	r.obs.RecordOperation(ctx, "outbox.relay", "success", time.Since(start))
	return published, nil
}

// Backlog reports how many events are still waiting for delivery.
func (r *Relay) Backlog(ctx context.Context) (int, error) {
	return r.store.PendingCount(ctx)
}
