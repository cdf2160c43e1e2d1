// internal/workers/reporting/compute-lead-stats/models.go
package computeleadstats

import (
	"context"

	"lead-funnel/internal/models"
	"lead-funnel/internal/store"
)

type StatsStore interface {
	LeadTotals(ctx context.Context) (store.LeadTotals, error)
	StatusCounts(ctx context.Context) (map[models.LeadStatus]int, error)
	Top(ctx context.Context, dimension string, n int) ([]models.KeyCount, error)
	AffiliateRollup(ctx context.Context) (models.AffiliateRollup, error)
}

type Input struct {
	// TopN overrides the configured list length when positive.
	TopN int `json:"topN"`
}

type Output struct {
	Stats *models.LeadStats `json:"stats"`
}
