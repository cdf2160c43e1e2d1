// internal/workers/lifecycle/transition-lead-status/config.go
package transitionleadstatus

import (
	"fmt"
	"time"

	"lead-funnel/pkg/registry"
)

type Config struct {
	Timeout  time.Duration
	Activity registry.Activity
}

func LoadConfig(reg *registry.ActivityRegistry) (*Config, error) {
	act, ok := reg.Find(TaskType)
	if !ok {
		return nil, fmt.Errorf("activity %s missing from registry", TaskType)
	}
	return &Config{
		Timeout:  act.TimeoutDuration(10 * time.Second),
		Activity: act,
	}, nil
}
