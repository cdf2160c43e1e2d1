// internal/workers/intake/create-lead-record/models.go
package createleadrecord

import (
	"context"
	"time"

	"lead-funnel/internal/models"
	validateleadintake "lead-funnel/internal/workers/intake/validate-lead-intake"
)

type Validator interface {
	Execute(ctx context.Context, input *validateleadintake.Input) (*validateleadintake.Output, error)
}

type AffiliateLookup interface {
	FindActiveByCode(ctx context.Context, code string) (*models.Affiliate, error)
}

type LeadStore interface {
	InsertWithEvent(ctx context.Context, lead *models.Lead, ev *models.AttributionEvent) (bool, error)
	Audit(ctx context.Context, eventType, leadID string, details map[string]interface{}) error
}

type Dispatcher interface {
	DispatchKey(ctx context.Context, key string) error
}

type Input struct {
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt time.Time              `json:"receivedAt"`
	ClientIP   string                 `json:"clientIp"`
	UserAgent  string                 `json:"userAgent"`
}

type Output struct {
	Lead       *models.Lead `json:"lead"`
	Attributed bool         `json:"attributed"`
}
