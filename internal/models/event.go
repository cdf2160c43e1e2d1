// internal/models/event.go
package models

import (
	"fmt"
	"time"
)

const (
	EventLeadCreated       = "lead.created"
	EventLeadStatusChanged = "lead.status_changed"
)

// AttributionEvent is written to the outbox with the lead change that caused it
// and consumed at least once by the commission engine and the external sinks.
type AttributionEvent struct {
	EventID        string     `json:"eventId"`
	Type           string     `json:"type"`
	IdempotencyKey string     `json:"idempotencyKey"`
	LeadID         string     `json:"leadId"`
	AffiliateID    *string    `json:"affiliateId,omitempty"`
	ReferralCode   string     `json:"referralCode,omitempty"`
	FromStatus     LeadStatus `json:"fromStatus,omitempty"`
	ToStatus       LeadStatus `json:"toStatus"`
	OccurredAt     time.Time  `json:"occurredAt"`

	// Contact fields travel only on lead.created, for the CRM sink.
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Phone    string `json:"phone,omitempty"`
	State    string `json:"state,omitempty"`
	Source   string `json:"source,omitempty"`
}

// IdempotencyKey identifies one lead reaching one state. The transition table
// has no cycles, so a lead reaches each state at most once.
func IdempotencyKey(leadID string, target LeadStatus) string {
	return fmt.Sprintf("%s:%s", leadID, target)
}

// HasAttribution reports whether the event concerns a referred lead.
func (e *AttributionEvent) HasAttribution() bool {
	return (e.AffiliateID != nil && *e.AffiliateID != "") || e.ReferralCode != ""
}
