// internal/workers/reporting/compute-lead-stats/handler.go
package computeleadstats

import (
	"context"
	"time"

	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const TaskType = "compute-lead-stats"

type Handler struct {
	config *Config
	store  StatsStore
	logger logger.Logger
}

func NewHandler(config *Config, st StatsStore, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  st,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute recomputes the dashboard snapshot. The rollups are independent
// reads, so they run concurrently and the first failure cancels the rest.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	topN := h.config.TopN
	if input != nil && input.TopN > 0 {
		topN = input.TopN
	}

	var (
		totals     store.LeadTotals
		byStatus   map[models.LeadStatus]int
		topStates  []models.KeyCount
		topSources []models.KeyCount
		affiliates models.AffiliateRollup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = h.store.LeadTotals(gctx)
		return err
	})
	g.Go(func() (err error) {
		byStatus, err = h.store.StatusCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		topStates, err = h.store.Top(gctx, "state", topN)
		return err
	})
	g.Go(func() (err error) {
		topSources, err = h.store.Top(gctx, "source", topN)
		return err
	})
	g.Go(func() (err error) {
		affiliates, err = h.store.AffiliateRollup(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Warn("stats rollup failed", map[string]interface{}{"error": err})
		return nil, err
	}

	stats := &models.LeadStats{
		TotalLeads:      totals.Total,
		StatusBreakdown: make(map[models.LeadStatus]int, 6),
		QualifiedCount:  totals.Qualified,
		TopStates:       nonNil(topStates),
		TopSources:      nonNil(topSources),
		ConversionRate:  ConversionRate(totals.Qualified, totals.Total),
		Affiliates:      affiliates,
		GeneratedAt:     time.Now().UTC(),
	}
	for _, st := range models.AllLeadStatuses() {
		stats.StatusBreakdown[st] = byStatus[st]
	}
	if totals.AvgTimeToComplete.Valid {
		stats.AverageTimeToComplete = RoundHalfUp(totals.AvgTimeToComplete.Float64, 2)
	}

	return &Output{Stats: stats}, nil
}

// ConversionRate is qualified/total rounded half-up to four places, and 0
// for an empty table.
func ConversionRate(qualified, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(qualified)).
		Div(decimal.NewFromInt(int64(total))).
		Round(4).
		InexactFloat64()
}

func RoundHalfUp(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func nonNil(kc []models.KeyCount) []models.KeyCount {
	if kc == nil {
		return []models.KeyCount{}
	}
	return kc
}
