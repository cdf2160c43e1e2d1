// internal/workers/lifecycle/transition-lead-status/models.go
package transitionleadstatus

import (
	"context"

	"lead-funnel/internal/models"
)

type LeadStore interface {
	Get(ctx context.Context, id string) (*models.Lead, error)
	UpdateWithEvent(ctx context.Context, id string, expected models.LeadStatus, upd *models.LeadUpdate, ev *models.AttributionEvent) (*models.Lead, error)
	Audit(ctx context.Context, eventType, leadID string, details map[string]interface{}) error
}

// Dispatcher delivers a committed outbox event right away. The relay retries
// whatever it fails to deliver.
type Dispatcher interface {
	DispatchKey(ctx context.Context, key string) error
}

type Input struct {
	LeadID string                 `json:"leadId"`
	Update map[string]interface{} `json:"update"`
}

type Output struct {
	Lead          *models.Lead `json:"lead"`
	StatusChanged bool         `json:"statusChanged"`
	EventKey      string       `json:"eventKey,omitempty"`
}
