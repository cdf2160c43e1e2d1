// internal/workers/reporting/compute-lead-stats/config.go
package computeleadstats

import (
	"time"

	"lead-funnel/internal/common/config"
)

const DefaultTopN = 5

type Config struct {
	Timeout time.Duration
	TopN    int
}

func LoadConfig(stats config.StatsConfig) *Config {
	topN := stats.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Config{
		Timeout: 10 * time.Second,
		TopN:    topN,
	}
}
