package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// KeyCount is one row of a top-N rollup.
type KeyCount struct {
	Key   string `json:"key" db:"key"`
	Count int    `json:"count" db:"count"`
}

// LeadStats is the dashboard snapshot, recomputed on every request.
type LeadStats struct {
	TotalLeads            int                `json:"totalLeads"`
	StatusBreakdown       map[LeadStatus]int `json:"statusBreakdown"`
	QualifiedCount        int                `json:"qualifiedCount"`
	TopStates             []KeyCount         `json:"topStates"`
	TopSources            []KeyCount         `json:"topSources"`
	ConversionRate        float64            `json:"conversionRate"`
	AverageTimeToComplete float64            `json:"averageTimeToComplete"`
	Affiliates            AffiliateRollup    `json:"affiliates"`
	GeneratedAt           time.Time          `json:"generatedAt"`
}

type AffiliateRollup struct {
	TotalAffiliates    int             `json:"totalAffiliates" db:"total_affiliates"`
	ActiveAffiliates   int             `json:"activeAffiliates" db:"active_affiliates"`
	TotalCommissions   decimal.Decimal `json:"totalCommissions" db:"total_commissions"`
	PendingCommissions decimal.Decimal `json:"pendingCommissions" db:"pending_commissions"`
	PaidCommissions    decimal.Decimal `json:"paidCommissions" db:"paid_commissions"`
}
