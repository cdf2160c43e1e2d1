// internal/workers/intake/create-lead-record/config.go
package createleadrecord

import (
	"time"

	"lead-funnel/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// LookupTimeout bounds the referral code lookup. A slow lookup leaves the
	// lead unattributed rather than delaying capture.
	LookupTimeout time.Duration
}

func LoadConfig(attribution config.AttributionConfig) *Config {
	lookup := config.GetDuration(attribution.LookupTimeout)
	if lookup <= 0 {
		lookup = 500 * time.Millisecond
	}
	return &Config{
		Timeout:       10 * time.Second,
		LookupTimeout: lookup,
	}
}
