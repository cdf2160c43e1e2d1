// internal/models/status.go
package models

import "fmt"

// LeadStatus is the lifecycle position of a lead.
type LeadStatus string

const (
	StatusNew       LeadStatus = "new"
	StatusContacted LeadStatus = "contacted"
	StatusQualified LeadStatus = "qualified"
	StatusApproved  LeadStatus = "approved"
	StatusInstalled LeadStatus = "installed"
	StatusRejected  LeadStatus = "rejected"
)

// transitions is the complete edge set. Anything absent is illegal.
var transitions = map[LeadStatus][]LeadStatus{
	StatusNew:       {StatusContacted, StatusRejected},
	StatusContacted: {StatusQualified, StatusRejected},
	StatusQualified: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusInstalled, StatusRejected},
	StatusInstalled: nil,
	StatusRejected:  nil,
}

// AllLeadStatuses returns the statuses in lifecycle order.
func AllLeadStatuses() []LeadStatus {
	return []LeadStatus{StatusNew, StatusContacted, StatusQualified, StatusApproved, StatusInstalled, StatusRejected}
}

func ParseLeadStatus(s string) (LeadStatus, error) {
	st := LeadStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown lead status %q", s)
	}
	return st, nil
}

func (s LeadStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s LeadStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func (s LeadStatus) CanTransitionTo(next LeadStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CommissionEffect is what an edge does to the referring affiliate's counters.
type CommissionEffect int

const (
	EffectNone CommissionEffect = iota
	EffectAccrue
	EffectReverse
)

func (e CommissionEffect) String() string {
	switch e {
	case EffectAccrue:
		return "accrue"
	case EffectReverse:
		return "reverse"
	default:
		return "none"
	}
}

// CommissionEffectFor fires only on edges that enter or leave approved.
func CommissionEffectFor(from, to LeadStatus) CommissionEffect {
	switch {
	case from == to:
		return EffectNone
	case to == StatusApproved:
		return EffectAccrue
	case from == StatusApproved && to != StatusInstalled:
		return EffectReverse
	default:
		return EffectNone
	}
}
