// internal/workers/affiliate/create-affiliate/handler.go
package createaffiliate

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/validation"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"
	generatereferralcode "lead-funnel/internal/workers/affiliate/generate-referral-code"

	"github.com/google/uuid"
)

const TaskType = "create-affiliate"

var ErrDuplicateAffiliate = errors.New(errors.ErrCodeDuplicateAffiliate, "An affiliate with this email already exists")

type Handler struct {
	config    *Config
	schema    *validation.Schema
	store     AffiliateStore
	generator *generatereferralcode.Handler
	logger    logger.Logger
}

func NewHandler(config *Config, st AffiliateStore, log logger.Logger) (*Handler, error) {
	schema, err := validation.Compile(config.Activity.InputSchema, config.Activity.FieldOrder)
	if err != nil {
		return nil, fmt.Errorf("affiliate schema: %w", err)
	}
	return &Handler{
		config:    config,
		schema:    schema,
		store:     st,
		generator: generatereferralcode.NewHandler(generatereferralcode.LoadConfig(config.MaxCodeAttempts), log),
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	payload := validation.TrimStrings(input.Payload)
	result, err := h.schema.Validate(payload)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, errors.NewValidationFailedError(result.Errors, len(result.Errors))
	}

	a := &models.Affiliate{
		ID:             uuid.New().String(),
		Name:           str(payload, "name"),
		Email:          strings.ToLower(str(payload, "email")),
		Phone:          str(payload, "phone"),
		CommissionRate: h.config.DefaultCommissionRate,
		PaymentMethod:  str(payload, "paymentMethod"),
		PaymentDetails: str(payload, "paymentDetails"),
		CustomMessage:  str(payload, "customMessage"),
		Status:         models.AffiliateActive,
	}

	// Each probe is the real insert, so the winning code and the row land together.
	claim := generatereferralcode.ClaimFunc(func(ctx context.Context, code string) (bool, error) {
		a.AffiliateCode = code
		ok, err := h.store.TryInsert(ctx, a)
		if stderrors.Is(err, store.ErrDuplicate) {
			return false, errors.NewDuplicateAffiliateError(a.Email)
		}
		return ok, err
	})

	out, err := h.generator.Generate(ctx, &generatereferralcode.Input{Name: a.Name}, claim)
	if err != nil {
		return nil, err
	}

	if err := h.store.Audit(ctx, "affiliate_created", a.ID, map[string]interface{}{
		"affiliateCode": a.AffiliateCode,
		"attempts":      out.Attempts,
	}); err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":       err,
			"affiliateId": a.ID,
		})
	}

	h.logger.Info("affiliate created", map[string]interface{}{
		"affiliateId":   a.ID,
		"affiliateCode": a.AffiliateCode,
		"attempts":      out.Attempts,
	})
	return &Output{Affiliate: a}, nil
}

func str(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}
