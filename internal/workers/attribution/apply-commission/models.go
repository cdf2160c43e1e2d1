// internal/workers/attribution/apply-commission/models.go
package applycommission

import (
	"context"

	"lead-funnel/internal/models"
	"lead-funnel/internal/store"

	"github.com/shopspring/decimal"
)

// Ledger moves affiliate counters, each call guarded by its idempotency key.
type Ledger interface {
	ApplyReferral(ctx context.Context, key, leadID, affiliateID string) (store.Effect, error)
	ApplyAccrual(ctx context.Context, key, leadID, affiliateID string) (store.Effect, error)
	ApplyReversal(ctx context.Context, key, leadID, affiliateID string) (store.Effect, error)
	RecordPayout(ctx context.Context, key, affiliateID string, amount decimal.Decimal) (*models.Affiliate, bool, error)
}

type AffiliateReader interface {
	Get(ctx context.Context, id string) (*models.Affiliate, error)
}

// Input is an attribution event as delivered by the outbox or a Zeebe job.
type Input struct {
	models.AttributionEvent
}

type Output struct {
	Effect  string          `json:"effect"`
	Applied bool            `json:"applied"`
	Amount  decimal.Decimal `json:"amount"`
}

type PayoutInput struct {
	AffiliateID    string          `json:"affiliateId"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type PayoutOutput struct {
	Affiliate *models.Affiliate `json:"affiliate"`
	Applied   bool              `json:"applied"`
}
