// internal/workers/attribution/apply-commission/handler.go
package applycommission

import (
	"context"
	stderrors "errors"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"

	"github.com/google/uuid"
)

const TaskType = "apply-commission"

type Handler struct {
	config     *Config
	ledger     Ledger
	affiliates AffiliateReader
	logger     logger.Logger
}

func NewHandler(config *Config, ledger Ledger, affiliates AffiliateReader, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		ledger:     ledger,
		affiliates: affiliates,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.ApplyEvent(ctx, &input.AttributionEvent)
}

// ApplyEvent turns one attribution event into at most one counter effect.
// Redelivering the same event is a no-op.
func (h *Handler) ApplyEvent(ctx context.Context, ev *models.AttributionEvent) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	if ev.IdempotencyKey == "" || ev.LeadID == "" {
		return nil, errors.NewInvalidRequestError("attribution event needs idempotencyKey and leadId")
	}
	if ev.AffiliateID == nil || *ev.AffiliateID == "" {
		return &Output{Effect: "none"}, nil
	}
	affiliateID := *ev.AffiliateID

	var (
		eff store.Effect
		err error
	)
	switch ev.Type {
	case models.EventLeadCreated:
		eff, err = h.ledger.ApplyReferral(ctx, ev.IdempotencyKey+":"+store.LedgerReferral, ev.LeadID, affiliateID)
	case models.EventLeadStatusChanged:
		switch models.CommissionEffectFor(ev.FromStatus, ev.ToStatus) {
		case models.EffectAccrue:
			eff, err = h.ledger.ApplyAccrual(ctx, ev.IdempotencyKey+":"+store.LedgerAccrual, ev.LeadID, affiliateID)
		case models.EffectReverse:
			if !h.config.ReverseOnUnapprove {
				return &Output{Effect: "none"}, nil
			}
			eff, err = h.ledger.ApplyReversal(ctx, ev.IdempotencyKey+":"+store.LedgerReversal, ev.LeadID, affiliateID)
		default:
			return &Output{Effect: "none"}, nil
		}
	default:
		return nil, errors.NewInvalidRequestError("unknown attribution event type " + ev.Type)
	}
	if err != nil {
		metrics.CommissionEffects.WithLabelValues(eff.Kind, "error").Inc()
		return nil, err
	}

	result := "duplicate"
	if eff.Applied {
		result = "applied"
	}
	metrics.CommissionEffects.WithLabelValues(eff.Kind, result).Inc()
	h.logger.Info("commission effect processed", map[string]interface{}{
		"leadId":      ev.LeadID,
		"affiliateId": affiliateID,
		"effect":      eff.Kind,
		"applied":     eff.Applied,
		"amount":      eff.Amount.StringFixed(2),
	})
	return &Output{Effect: eff.Kind, Applied: eff.Applied, Amount: eff.Amount}, nil
}

// RecordPayout moves amount from pending to paid for one affiliate.
func (h *Handler) RecordPayout(ctx context.Context, input *PayoutInput) (*PayoutOutput, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	if !input.Amount.IsPositive() {
		return nil, errors.NewInvalidRequestError("payout amount must be greater than zero")
	}
	amount := input.Amount.Round(2)
	key := input.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}

	current, err := h.affiliates.Get(ctx, input.AffiliateID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewResourceNotFoundError("affiliate", input.AffiliateID)
	}
	if err != nil {
		return nil, err
	}

	a, applied, err := h.ledger.RecordPayout(ctx, "payout:"+key, input.AffiliateID, amount)
	if stderrors.Is(err, store.ErrInsufficientPending) {
		return nil, errors.NewInsufficientPendingError(amount.StringFixed(2), current.PendingCommissions.StringFixed(2))
	}
	if err != nil {
		return nil, err
	}

	result := "duplicate"
	if applied {
		result = "applied"
	}
	metrics.CommissionEffects.WithLabelValues(store.LedgerPayout, result).Inc()
	h.logger.Info("payout recorded", map[string]interface{}{
		"affiliateId": input.AffiliateID,
		"amount":      amount.StringFixed(2),
		"applied":     applied,
	})
	return &PayoutOutput{Affiliate: a, Applied: applied}, nil
}
