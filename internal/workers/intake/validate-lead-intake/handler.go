// internal/workers/intake/validate-lead-intake/handler.go
package validateleadintake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/validation"
	"lead-funnel/internal/models"

	"github.com/avct/uasurfer"
)

const (
	TaskType = "validate-lead-intake"

	DefaultReferralSource = "direct"
)

// ErrValidationFailed matches any intake rejection with errors.Is.
var ErrValidationFailed = errors.New(errors.ErrCodeValidationFailed, "Submission failed validation")

type Handler struct {
	config *Config
	schema *validation.Schema
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	schema, err := validation.Compile(config.Activity.InputSchema, config.Activity.FieldOrder)
	if err != nil {
		return nil, fmt.Errorf("intake schema: %w", err)
	}
	return &Handler{
		config: config,
		schema: schema,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}, nil
}

// Execute validates the raw submission and returns a normalized draft. On
// failure the error carries every violation, in field order.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	payload := validation.TrimStrings(input.Payload)

	result, err := h.schema.Validate(payload)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !result.Valid {
		h.logger.Debug("submission rejected", map[string]interface{}{
			"violations": len(result.Errors),
		})
		return nil, errors.NewValidationFailedError(result.Errors, len(result.Errors))
	}

	draft := &models.LeadDraft{
		Email:            strings.ToLower(str(payload, "email")),
		FullName:         str(payload, "fullName"),
		Phone:            str(payload, "phone"),
		City:             str(payload, "city"),
		State:            str(payload, "state"),
		HasResidence:     payload["hasResidence"] == true,
		HasInternet:      payload["hasInternet"] == true,
		HasSpace:         payload["hasSpace"] == true,
		ReferralCode:     strings.ToUpper(str(payload, "referralCode")),
		ReferralSource:   str(payload, "referralSource"),
		SessionID:        str(payload, "sessionId"),
		UTMSource:        str(payload, "utmSource"),
		UTMMedium:        str(payload, "utmMedium"),
		UTMCampaign:      str(payload, "utmCampaign"),
		IPAddress:        input.ClientIP,
		UserAgent:        str(payload, "userAgent"),
		ScreenResolution: str(payload, "screenResolution"),
		TimeToComplete:   num(payload, "timeToComplete"),
	}
	if draft.ReferralSource == "" {
		draft.ReferralSource = DefaultReferralSource
	}
	if draft.UserAgent == "" {
		draft.UserAgent = strings.TrimSpace(input.UserAgent)
	}
	draft.DeviceType = DeviceType(draft.UserAgent)

	draft.SubmittedAt = input.ReceivedAt
	if raw := str(payload, "submittedAt"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			draft.SubmittedAt = t
		}
	}
	if draft.SubmittedAt.IsZero() {
		draft.SubmittedAt = time.Now()
	}
	draft.SubmittedAt = draft.SubmittedAt.UTC()

	return &Output{Draft: draft}, nil
}

func str(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

func num(payload map[string]interface{}, key string) *float64 {
	switch v := payload[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

// DeviceType classifies a user agent as desktop, mobile, tablet, tv,
// console, wearable, bot or unknown.
func DeviceType(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}
	switch uasurfer.Parse(userAgent).DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	case uasurfer.DeviceTV:
		return "tv"
	case uasurfer.DeviceConsole:
		return "console"
	case uasurfer.DeviceWearable:
		return "wearable"
	case uasurfer.DeviceBot:
		return "bot"
	default:
		return "unknown"
	}
}
