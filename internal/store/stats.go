package store

import (
	"context"
	"database/sql"
	"fmt"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/models"
)

// StatsRepository runs the read-only rollup queries behind the dashboard.
type StatsRepository struct {
	base
}

func NewStatsRepository(pg *database.PostgresClient) *StatsRepository {
	return &StatsRepository{base: newBase(pg)}
}

// LeadTotals is the single-scan part of the snapshot.
type LeadTotals struct {
	Total             int             `db:"total"`
	Qualified         int             `db:"qualified"`
	AvgTimeToComplete sql.NullFloat64 `db:"avg_time_to_complete"`
}

func (r *StatsRepository) LeadTotals(ctx context.Context) (LeadTotals, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var t LeadTotals
	err := r.db.GetContext(ctx, &t, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE has_residence AND has_internet AND has_space) AS qualified,
		       AVG(time_to_complete) AS avg_time_to_complete
		FROM leads`)
	return t, classify("lead totals", err)
}

func (r *StatsRepository) StatusCounts(ctx context.Context) (map[models.LeadStatus]int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var rows []models.KeyCount
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT status AS key, COUNT(*) AS count FROM leads GROUP BY status`); err != nil {
		return nil, classify("status counts", err)
	}
	out := make(map[models.LeadStatus]int, len(rows))
	for _, kc := range rows {
		out[models.LeadStatus(kc.Key)] = kc.Count
	}
	return out, nil
}

var topColumns = map[string]string{
	"state":  "state",
	"source": "referral_source",
}

// Top returns the n most frequent values of dimension ("state" or
// "source"), ties broken by value.
func (r *StatsRepository) Top(ctx context.Context, dimension string, n int) ([]models.KeyCount, error) {
	col, ok := topColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown stats dimension %q", dimension)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows := []models.KeyCount{}
	err := r.db.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT %[1]s AS key, COUNT(*) AS count FROM leads
		WHERE %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY count DESC, key ASC
		LIMIT $1`, col), n)
	if err != nil {
		return nil, classify("top "+dimension, err)
	}
	return rows, nil
}

func (r *StatsRepository) AffiliateRollup(ctx context.Context) (models.AffiliateRollup, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var a models.AffiliateRollup
	err := r.db.GetContext(ctx, &a, `
		SELECT COUNT(*) AS total_affiliates,
		       COUNT(*) FILTER (WHERE status = 'active') AS active_affiliates,
		       COALESCE(SUM(total_commissions), 0) AS total_commissions,
		       COALESCE(SUM(pending_commissions), 0) AS pending_commissions,
		       COALESCE(SUM(paid_commissions), 0) AS paid_commissions
		FROM affiliates
		WHERE deleted_at IS NULL`)
	return a, classify("affiliate rollup", err)
}
