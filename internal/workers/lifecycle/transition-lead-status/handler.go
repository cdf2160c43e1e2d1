// internal/workers/lifecycle/transition-lead-status/handler.go
package transitionleadstatus

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"
	"lead-funnel/internal/common/validation"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"

	"github.com/shopspring/decimal"
)

const TaskType = "transition-lead-status"

// IllegalTransitionError reports an edge missing from the transition table.
type IllegalTransitionError struct {
	From models.LeadStatus
	To   models.LeadStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal lead status transition %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return errors.NewIllegalTransitionError(string(e.From), string(e.To))
}

type Handler struct {
	config     *Config
	schema     *validation.Schema
	store      LeadStore
	dispatcher Dispatcher
	logger     logger.Logger
}

// NewHandler builds the operator update handler. dispatcher may be nil, in
// which case events wait for the outbox relay.
func NewHandler(config *Config, st LeadStore, dispatcher Dispatcher, log logger.Logger) (*Handler, error) {
	schema, err := validation.Compile(config.Activity.InputSchema, config.Activity.FieldOrder)
	if err != nil {
		return nil, fmt.Errorf("lead update schema: %w", err)
	}
	return &Handler{
		config:     config,
		schema:     schema,
		store:      st,
		dispatcher: dispatcher,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	payload := validation.TrimStrings(input.Update)
	result, err := h.schema.Validate(payload)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, errors.NewValidationFailedError(result.Errors, len(result.Errors))
	}
	upd, err := parseUpdate(payload)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	current, err := h.store.Get(ctx, input.LeadID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewResourceNotFoundError("lead", input.LeadID)
	}
	if err != nil {
		return nil, err
	}

	// Re-asserting the current status is not an edge.
	if upd.Status != nil && *upd.Status == current.Status {
		upd.Status = nil
	}

	var ev *models.AttributionEvent
	if upd.Status != nil {
		next := *upd.Status
		if !current.Status.CanTransitionTo(next) {
			return nil, &IllegalTransitionError{From: current.Status, To: next}
		}
		ev = &models.AttributionEvent{
			Type:           models.EventLeadStatusChanged,
			IdempotencyKey: models.IdempotencyKey(current.ID, next),
			LeadID:         current.ID,
			AffiliateID:    current.AffiliateID,
			FromStatus:     current.Status,
			ToStatus:       next,
			OccurredAt:     time.Now().UTC(),
		}
		if current.ReferralCode != nil {
			ev.ReferralCode = *current.ReferralCode
		}
	}

	updated, err := h.store.UpdateWithEvent(context.WithoutCancel(ctx), current.ID, current.Status, upd, ev)
	if stderrors.Is(err, store.ErrStale) {
		return nil, errors.NewConcurrentUpdateError("lead", current.ID)
	}
	if err != nil {
		return nil, err
	}

	out := &Output{Lead: updated}
	if ev == nil {
		return out, nil
	}
	out.StatusChanged = true
	out.EventKey = ev.IdempotencyKey

	if err := h.store.Audit(ctx, "lead_status_changed", current.ID, map[string]interface{}{
		"from": current.Status,
		"to":   ev.ToStatus,
	}); err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":  err,
			"leadId": current.ID,
		})
	}

	h.logger.Info("lead status changed", map[string]interface{}{
		"leadId":           current.ID,
		"from":             current.Status,
		"to":               ev.ToStatus,
		"commissionEffect": models.CommissionEffectFor(current.Status, ev.ToStatus).String(),
	})
	h.dispatch(ctx, ev)
	return out, nil
}

func (h *Handler) dispatch(ctx context.Context, ev *models.AttributionEvent) {
	if h.dispatcher == nil {
		return
	}
	if err := h.dispatcher.DispatchKey(context.WithoutCancel(ctx), ev.IdempotencyKey); err != nil {
		metrics.OutboxEvents.WithLabelValues(ev.Type, "inline_failed").Inc()
		h.logger.Warn("inline event dispatch failed, relay will retry", map[string]interface{}{
			"error":          err,
			"idempotencyKey": ev.IdempotencyKey,
		})
	}
}

func parseUpdate(payload map[string]interface{}) (*models.LeadUpdate, error) {
	upd := &models.LeadUpdate{}
	if v, ok := payload["status"].(string); ok {
		st, err := models.ParseLeadStatus(v)
		if err != nil {
			return nil, err
		}
		upd.Status = &st
	}
	strField := func(key string) *string {
		if v, ok := payload[key].(string); ok {
			return &v
		}
		return nil
	}
	upd.FullName = strField("fullName")
	upd.Phone = strField("phone")
	upd.City = strField("city")
	upd.State = strField("state")
	upd.EquipmentType = strField("equipmentType")
	upd.Notes = strField("notes")

	switch v := payload["monthlyEarnings"].(type) {
	case float64:
		d := decimal.NewFromFloat(v).Round(2)
		upd.MonthlyEarnings = &d
	case int:
		d := decimal.NewFromInt(int64(v))
		upd.MonthlyEarnings = &d
	}
	if v, ok := payload["installationDate"].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("installationDate: %w", err)
		}
		t = t.UTC()
		upd.InstallationDate = &t
	}
	return upd, nil
}
