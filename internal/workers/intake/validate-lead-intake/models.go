// internal/workers/intake/validate-lead-intake/models.go
package validateleadintake

import (
	"time"

	"lead-funnel/internal/models"
)

type Input struct {
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt time.Time              `json:"receivedAt"`
	ClientIP   string                 `json:"clientIp"`
	UserAgent  string                 `json:"userAgent"`
}

type Output struct {
	Draft *models.LeadDraft `json:"draft"`
}
