// internal/workers/affiliate/create-affiliate/config.go
package createaffiliate

import (
	"fmt"
	"time"

	"lead-funnel/internal/common/config"
	"lead-funnel/pkg/registry"

	"github.com/shopspring/decimal"
)

var defaultRate = decimal.NewFromInt(50)

type Config struct {
	Timeout               time.Duration
	DefaultCommissionRate decimal.Decimal
	MaxCodeAttempts       int
	Activity              registry.Activity
}

func LoadConfig(reg *registry.ActivityRegistry, attribution config.AttributionConfig) (*Config, error) {
	act, ok := reg.Find(TaskType)
	if !ok {
		return nil, fmt.Errorf("activity %s missing from registry", TaskType)
	}
	rate := defaultRate
	if attribution.DefaultCommissionRate != "" {
		r, err := decimal.NewFromString(attribution.DefaultCommissionRate)
		if err != nil || r.IsNegative() {
			return nil, fmt.Errorf("invalid default commission rate %q", attribution.DefaultCommissionRate)
		}
		rate = r
	}
	return &Config{
		Timeout:               act.TimeoutDuration(10 * time.Second),
		DefaultCommissionRate: rate.Round(2),
		MaxCodeAttempts:       attribution.MaxCodeAttempts,
		Activity:              act,
	}, nil
}
