package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadStatus_TransitionTable(t *testing.T) {
	legal := map[LeadStatus][]LeadStatus{
		StatusNew:       {StatusContacted, StatusRejected},
		StatusContacted: {StatusQualified, StatusRejected},
		StatusQualified: {StatusApproved, StatusRejected},
		StatusApproved:  {StatusInstalled, StatusRejected},
	}

	for _, from := range AllLeadStatuses() {
		for _, to := range AllLeadStatuses() {
			want := false
			for _, allowed := range legal[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusInstalled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
}

func TestParseLeadStatus(t *testing.T) {
	st, err := ParseLeadStatus("qualified")
	require.NoError(t, err)
	assert.Equal(t, StatusQualified, st)

	_, err = ParseLeadStatus("archived")
	assert.Error(t, err)
}

func TestCommissionEffectFor(t *testing.T) {
	tests := []struct {
		from, to LeadStatus
		want     CommissionEffect
	}{
		{StatusQualified, StatusApproved, EffectAccrue},
		{StatusApproved, StatusRejected, EffectReverse},
		{StatusApproved, StatusInstalled, EffectNone},
		{StatusNew, StatusContacted, EffectNone},
		{StatusApproved, StatusApproved, EffectNone},
		{StatusNew, StatusRejected, EffectNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CommissionEffectFor(tt.from, tt.to))
		})
	}
}

func TestPage_NormalizeAndResult(t *testing.T) {
	p := Page{Page: 0, PageSize: 500}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = Page{Page: 3, PageSize: 10}.Normalize()
	assert.Equal(t, 20, p.Offset())

	res := NewPagedResult[string](nil, 21, p)
	assert.Equal(t, 3, res.TotalPages)
	assert.NotNil(t, res.Items)

	empty := NewPagedResult([]string{}, 0, Page{Page: 1, PageSize: 20})
	assert.Equal(t, 0, empty.TotalPages)
}

func TestPage_NormalizeClampsHugePage(t *testing.T) {
	p := Page{Page: math.MaxInt, PageSize: MaxPageSize}.Normalize()

	assert.Equal(t, MaxPage, p.Page)
	assert.Equal(t, (MaxPage-1)*MaxPageSize, p.Offset())
	assert.Positive(t, p.Offset())
}

func TestAffiliate_Balanced(t *testing.T) {
	a := Affiliate{
		TotalCommissions:   decimal.NewFromInt(150),
		PaidCommissions:    decimal.NewFromInt(100),
		PendingCommissions: decimal.NewFromInt(50),
	}
	assert.True(t, a.Balanced())

	a.PendingCommissions = decimal.NewFromInt(49)
	assert.False(t, a.Balanced())
}

func TestAffiliate_BalancedAfterClawback(t *testing.T) {
	// a paid-out accrual reversed: pending carries the amount owed back
	a := Affiliate{
		TotalCommissions:   decimal.Zero,
		PaidCommissions:    decimal.NewFromInt(50),
		PendingCommissions: decimal.NewFromInt(-50),
	}
	assert.True(t, a.Balanced())
}

func TestAffiliate_MoneyRendersAsNumber(t *testing.T) {
	out, err := json.Marshal(Affiliate{CommissionRate: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"commissionRate":50`)
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "lead-1:approved", IdempotencyKey("lead-1", StatusApproved))

	ev := AttributionEvent{}
	assert.False(t, ev.HasAttribution())
	ev.ReferralCode = "JOH001"
	assert.True(t, ev.HasAttribution())
}

func TestLead_IsQualified(t *testing.T) {
	l := Lead{HasResidence: true, HasInternet: true, HasSpace: true}
	assert.True(t, l.IsQualified())
	l.HasSpace = false
	assert.False(t, l.IsQualified())
}
