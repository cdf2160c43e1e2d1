// internal/workers/affiliate/create-affiliate/models.go
package createaffiliate

import (
	"context"

	"lead-funnel/internal/models"
)

// AffiliateStore is the slice of the identity store sign-up needs.
type AffiliateStore interface {
	TryInsert(ctx context.Context, a *models.Affiliate) (bool, error)
	Audit(ctx context.Context, eventType, affiliateID string, details map[string]interface{}) error
}

type Input struct {
	Payload map[string]interface{} `json:"payload"`
}

type Output struct {
	Affiliate *models.Affiliate `json:"affiliate"`
}
