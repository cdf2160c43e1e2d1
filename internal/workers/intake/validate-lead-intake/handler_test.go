// internal/workers/intake/validate-lead-intake/handler_test.go
package validateleadintake

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/validation"
	"lead-funnel/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg, err := LoadConfig(registry.MustDefault())
	require.NoError(t, err)
	h, err := NewHandler(cfg, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"fullName":     "  John Smith ",
		"email":        "John.Smith@Example.COM",
		"phone":        "(555) 123-4567",
		"city":         "Austin",
		"state":        "TX",
		"hasResidence": true,
		"hasInternet":  true,
		"hasSpace":     false,
	}
}

func violationsOf(t *testing.T, err error) []validation.ValidationError {
	t.Helper()
	se := errors.Normalize(err)
	require.Equal(t, errors.ErrCodeValidationFailed, se.Code)
	v, ok := se.Metadata["violations"].([]validation.ValidationError)
	require.True(t, ok, "violations metadata missing")
	return v
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_NormalizesAndDefaults(t *testing.T) {
	h := newTestHandler(t)
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	payload := validPayload()
	payload["referralCode"] = " joh001 "
	out, err := h.Execute(context.Background(), &Input{
		Payload:    payload,
		ReceivedAt: received,
		ClientIP:   "203.0.113.7",
		UserAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	})

	require.NoError(t, err)
	d := out.Draft
	assert.Equal(t, "john.smith@example.com", d.Email)
	assert.Equal(t, "John Smith", d.FullName)
	assert.Equal(t, "JOH001", d.ReferralCode)
	assert.Equal(t, DefaultReferralSource, d.ReferralSource)
	assert.Equal(t, received, d.SubmittedAt)
	assert.Equal(t, "203.0.113.7", d.IPAddress)
	assert.Equal(t, "mobile", d.DeviceType)
	assert.False(t, d.HasSpace)
	assert.Nil(t, d.TimeToComplete)
}

func TestHandler_Execute_OptionalFieldsPassThrough(t *testing.T) {
	h := newTestHandler(t)

	payload := validPayload()
	payload["referralSource"] = "facebook"
	payload["utmCampaign"] = "spring"
	payload["submittedAt"] = "2026-02-01T10:00:00Z"
	payload["timeToComplete"] = 42.5
	payload["userAgent"] = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	payload["sessionId"] = nil

	out, err := h.Execute(context.Background(), &Input{Payload: payload, ReceivedAt: time.Now()})

	require.NoError(t, err)
	d := out.Draft
	assert.Equal(t, "facebook", d.ReferralSource)
	assert.Equal(t, "spring", d.UTMCampaign)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), d.SubmittedAt)
	require.NotNil(t, d.TimeToComplete)
	assert.Equal(t, 42.5, *d.TimeToComplete)
	assert.Equal(t, "desktop", d.DeviceType)
	assert.Empty(t, d.SessionID)
}

func TestHandler_Execute_ReportsAllViolationsInFieldOrder(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{Payload: map[string]interface{}{
		"fullName":     "J",
		"email":        "not-an-email",
		"phone":        "12",
		"city":         "Austin",
		"state":        "TX",
		"hasResidence": "yes",
		"hasInternet":  true,
	}})

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrValidationFailed))

	v := violationsOf(t, err)
	fields := make([]string, 0, len(v))
	for _, e := range v {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"fullName", "email", "phone", "hasResidence", "hasSpace"}, fields)
	assert.Equal(t, validation.CodeMinLength, v[0].Code)
	assert.Equal(t, validation.CodePattern, v[1].Code)
	assert.Equal(t, validation.CodeInvalidType, v[3].Code)
	assert.Equal(t, validation.CodeRequired, v[4].Code)
}

func TestHandler_Execute_PhoneRules(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		phone string
		valid bool
	}{
		{"555-123-4567", true},
		{"+1 (555) 123.4567", true},
		{"5551234", true},
		{"555-12", false},
		{"555-CALL-NOW", false},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			payload := validPayload()
			payload["phone"] = tt.phone
			_, err := h.Execute(context.Background(), &Input{Payload: payload})
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			v := violationsOf(t, err)
			require.Len(t, v, 1)
			assert.Equal(t, "phone", v[0].Field)
		})
	}
}

func TestHandler_Execute_NegativeTimeToComplete(t *testing.T) {
	h := newTestHandler(t)

	payload := validPayload()
	payload["timeToComplete"] = -1
	_, err := h.Execute(context.Background(), &Input{Payload: payload})

	v := violationsOf(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, "timeToComplete", v[0].Field)
	assert.Equal(t, validation.CodeMinValue, v[0].Code)
}

func TestHandler_Execute_ReceiptTimeDefault(t *testing.T) {
	h := newTestHandler(t)

	before := time.Now().UTC()
	out, err := h.Execute(context.Background(), &Input{Payload: validPayload()})
	require.NoError(t, err)
	assert.False(t, out.Draft.SubmittedAt.Before(before.Add(-time.Second)))
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, "unknown", DeviceType(""))
	assert.Equal(t, "tablet", DeviceType("Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"))
}
