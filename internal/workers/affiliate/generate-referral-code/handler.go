// internal/workers/affiliate/generate-referral-code/handler.go
package generatereferralcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"
)

const TaskType = "generate-referral-code"

var ErrCodeGenerationExhausted = errors.New(errors.ErrCodeCodeGenerationExhausted, "Could not allocate a unique referral code")

var suffixSpace = big.NewInt(1000)

type Handler struct {
	config  *Config
	entropy io.Reader
	logger  logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		entropy: rand.Reader,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Prefix takes up to three ASCII letters from each whitespace-separated
// token of name, uppercases the result and keeps at most six characters.
func Prefix(name string) string {
	var b strings.Builder
	for _, token := range strings.Fields(name) {
		taken := 0
		for i := 0; i < len(token) && taken < 3; i++ {
			c := token[i]
			if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
				b.WriteByte(c)
				taken++
			}
		}
	}
	p := strings.ToUpper(b.String())
	if len(p) > MaxPrefixLength {
		p = p[:MaxPrefixLength]
	}
	if p == "" {
		return DefaultPrefix
	}
	return p
}

func (h *Handler) suffix() (string, error) {
	n, err := rand.Int(h.entropy, suffixSpace)
	if err != nil {
		return "", fmt.Errorf("draw code suffix: %w", err)
	}
	return fmt.Sprintf("%03d", n.Int64()), nil
}

// Generate probes candidate codes against claimer until one is claimed.
// Store errors abort at once; collisions on every attempt return
// ErrCodeGenerationExhausted.
func (h *Handler) Generate(ctx context.Context, input *Input, claimer Claimer) (*Output, error) {
	prefix := Prefix(input.Name)

	for attempt := 1; attempt <= h.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewStoreTimeoutError("referral code allocation", err)
		}
		suffix, err := h.suffix()
		if err != nil {
			return nil, errors.NewInternalError(err)
		}
		code := prefix + suffix

		ok, err := claimer.TryClaim(ctx, code)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.CodeGenerationAttempts.Observe(float64(attempt))
			h.logger.Debug("referral code allocated", map[string]interface{}{
				"code":     code,
				"attempts": attempt,
			})
			return &Output{Code: code, Attempts: attempt}, nil
		}
	}

	metrics.CodeGenerationAttempts.Observe(float64(h.config.MaxAttempts))
	h.logger.Warn("referral code space exhausted for prefix", map[string]interface{}{
		"prefix":   prefix,
		"attempts": h.config.MaxAttempts,
	})
	return nil, errors.NewCodeGenerationExhaustedError(prefix, h.config.MaxAttempts)
}
