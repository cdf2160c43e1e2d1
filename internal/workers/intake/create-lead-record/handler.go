// internal/workers/intake/create-lead-record/handler.go
package createleadrecord

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"
	validateleadintake "lead-funnel/internal/workers/intake/validate-lead-intake"

	"github.com/google/uuid"
)

const TaskType = "submit-lead"

var ErrDuplicateLead = errors.New(errors.ErrCodeDuplicateLead, "A submission with this email already exists")

type Handler struct {
	config     *Config
	validator  Validator
	affiliates AffiliateLookup
	leads      LeadStore
	dispatcher Dispatcher
	logger     logger.Logger
}

// NewHandler wires the submit path. dispatcher may be nil, in which case
// lead.created waits for the outbox relay.
func NewHandler(config *Config, validator Validator, affiliates AffiliateLookup, leads LeadStore, dispatcher Dispatcher, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		validator:  validator,
		affiliates: affiliates,
		leads:      leads,
		dispatcher: dispatcher,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute validates, attributes and stores one submission. The lead and its
// lead.created event commit together on a context the client cannot cancel.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	received := input.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	validated, err := h.validator.Execute(ctx, &validateleadintake.Input{
		Payload:    input.Payload,
		ReceivedAt: received,
		ClientIP:   input.ClientIP,
		UserAgent:  input.UserAgent,
	})
	if err != nil {
		metrics.LeadsSubmitted.WithLabelValues("invalid", "false").Inc()
		return nil, err
	}
	draft := validated.Draft

	lead := newLead(draft)
	affiliate := h.resolve(ctx, draft.ReferralCode)
	if affiliate != nil {
		lead.AffiliateID = &affiliate.ID
	}

	ev := &models.AttributionEvent{
		Type:           models.EventLeadCreated,
		IdempotencyKey: models.IdempotencyKey(lead.ID, models.StatusNew),
		LeadID:         lead.ID,
		AffiliateID:    lead.AffiliateID,
		ReferralCode:   draft.ReferralCode,
		ToStatus:       models.StatusNew,
		OccurredAt:     received,
		Email:          lead.Email,
		FullName:       lead.FullName,
		Phone:          lead.Phone,
		State:          lead.State,
		Source:         lead.ReferralSource,
	}

	attributed := strconv.FormatBool(affiliate != nil)
	inserted, err := h.leads.InsertWithEvent(context.WithoutCancel(ctx), lead, ev)
	if err != nil {
		metrics.LeadsSubmitted.WithLabelValues("error", attributed).Inc()
		h.logger.Error("lead insert failed", map[string]interface{}{
			"error": err,
		})
		return nil, err
	}
	if !inserted {
		metrics.LeadsSubmitted.WithLabelValues("duplicate", attributed).Inc()
		return nil, errors.NewDuplicateLeadError(lead.Email)
	}
	metrics.LeadsSubmitted.WithLabelValues("created", attributed).Inc()

	details := map[string]interface{}{"referralSource": lead.ReferralSource}
	if lead.AffiliateID != nil {
		details["affiliateId"] = *lead.AffiliateID
	}
	if err := h.leads.Audit(context.WithoutCancel(ctx), "lead_created", lead.ID, details); err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":  err,
			"leadId": lead.ID,
		})
	}

	h.logger.Info("lead created", map[string]interface{}{
		"leadId":     lead.ID,
		"attributed": affiliate != nil,
		"qualified":  lead.IsQualified(),
	})

	if h.dispatcher != nil {
		if err := h.dispatcher.DispatchKey(context.WithoutCancel(ctx), ev.IdempotencyKey); err != nil {
			metrics.OutboxEvents.WithLabelValues(ev.Type, "inline_failed").Inc()
			h.logger.Warn("inline event dispatch failed, relay will retry", map[string]interface{}{
				"error":          err,
				"idempotencyKey": ev.IdempotencyKey,
			})
		}
	}
	return &Output{Lead: lead, Attributed: affiliate != nil}, nil
}

// resolve looks the referral code up under a short timeout. Any failure
// leaves the lead unattributed.
func (h *Handler) resolve(ctx context.Context, code string) *models.Affiliate {
	if code == "" {
		return nil
	}
	lctx, cancel := context.WithTimeout(ctx, h.config.LookupTimeout)
	defer cancel()

	a, err := h.affiliates.FindActiveByCode(lctx, code)
	switch {
	case err == nil:
		return a
	case stderrors.Is(err, store.ErrNotFound):
		h.logger.Debug("referral code did not resolve", map[string]interface{}{"referralCode": code})
	default:
		h.logger.Warn("referral code lookup failed, storing lead unattributed", map[string]interface{}{
			"error":        err,
			"referralCode": code,
		})
	}
	return nil
}

func newLead(d *models.LeadDraft) *models.Lead {
	lead := &models.Lead{
		ID:               uuid.New().String(),
		Email:            d.Email,
		FullName:         d.FullName,
		Phone:            d.Phone,
		City:             d.City,
		State:            d.State,
		HasResidence:     d.HasResidence,
		HasInternet:      d.HasInternet,
		HasSpace:         d.HasSpace,
		ReferralSource:   d.ReferralSource,
		SessionID:        d.SessionID,
		UTMSource:        d.UTMSource,
		UTMMedium:        d.UTMMedium,
		UTMCampaign:      d.UTMCampaign,
		IPAddress:        d.IPAddress,
		UserAgent:        d.UserAgent,
		DeviceType:       d.DeviceType,
		ScreenResolution: d.ScreenResolution,
		SubmittedAt:      d.SubmittedAt,
		TimeToComplete:   d.TimeToComplete,
		Status:           models.StatusNew,
	}
	if d.ReferralCode != "" {
		code := d.ReferralCode
		lead.ReferralCode = &code
	}
	return lead
}
