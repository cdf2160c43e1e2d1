// internal/workers/attribution/apply-commission/config.go
package applycommission

import (
	"time"

	"lead-funnel/internal/common/config"
)

type Config struct {
	Timeout            time.Duration
	ReverseOnUnapprove bool
}

func LoadConfig(attribution config.AttributionConfig) *Config {
	return &Config{
		Timeout:            5 * time.Second,
		ReverseOnUnapprove: attribution.ReverseOnUnapprove,
	}
}
