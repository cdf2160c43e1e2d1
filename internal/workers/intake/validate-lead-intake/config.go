// internal/workers/intake/validate-lead-intake/config.go
package validateleadintake

import (
	"fmt"

	"lead-funnel/pkg/registry"
)

// Config has no Timeout. Validation does not block and the Zeebe job
// deadline comes from the registry.
type Config struct {
	// Activity supplies the intake schema and its violation order.
	Activity registry.Activity
}

func LoadConfig(reg *registry.ActivityRegistry) (*Config, error) {
	act, ok := reg.Find(TaskType)
	if !ok {
		return nil, fmt.Errorf("activity %s missing from registry", TaskType)
	}
	return &Config{
		Activity: act,
	}, nil
}
