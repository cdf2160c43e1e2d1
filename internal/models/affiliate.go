// internal/models/affiliate.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AffiliateStatus string

const (
	AffiliateActive    AffiliateStatus = "active"
	AffiliateInactive  AffiliateStatus = "inactive"
	AffiliateSuspended AffiliateStatus = "suspended"
)

func (s AffiliateStatus) Valid() bool {
	switch s {
	case AffiliateActive, AffiliateInactive, AffiliateSuspended:
		return true
	}
	return false
}

// Affiliate is a referring partner. Counter fields are written only by the
// commission engine and payout bookkeeping.
type Affiliate struct {
	ID                 string          `json:"id" db:"id"`
	Name               string          `json:"name" db:"name"`
	Email              string          `json:"email" db:"email"`
	Phone              string          `json:"phone" db:"phone"`
	AffiliateCode      string          `json:"affiliateCode" db:"affiliate_code"`
	CommissionRate     decimal.Decimal `json:"commissionRate" db:"commission_rate"`
	TotalReferrals     int             `json:"totalReferrals" db:"total_referrals"`
	ApprovedReferrals  int             `json:"approvedReferrals" db:"approved_referrals"`
	TotalCommissions   decimal.Decimal `json:"totalCommissions" db:"total_commissions"`
	PaidCommissions    decimal.Decimal `json:"paidCommissions" db:"paid_commissions"`
	PendingCommissions decimal.Decimal `json:"pendingCommissions" db:"pending_commissions"`
	PaymentMethod      string          `json:"paymentMethod" db:"payment_method"`
	PaymentDetails     string          `json:"paymentDetails" db:"payment_details"`
	Status             AffiliateStatus `json:"status" db:"status"`
	Notes              string          `json:"notes" db:"notes"`
	CustomMessage      string          `json:"customMessage" db:"custom_message"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time       `json:"updatedAt" db:"updated_at"`
	DeletedAt          *time.Time      `json:"deletedAt,omitempty" db:"deleted_at"`
}

// Balanced reports whether total equals paid plus pending.
func (a *Affiliate) Balanced() bool {
	return a.TotalCommissions.Equal(a.PaidCommissions.Add(a.PendingCommissions))
}

// AffiliateDraft is a sign-up ready for code allocation and insert.
type AffiliateDraft struct {
	Name           string
	Email          string
	Phone          string
	CommissionRate decimal.Decimal
	PaymentMethod  string
	PaymentDetails string
	Notes          string
	CustomMessage  string
}

// AffiliateUpdate carries operator-mutable profile fields. Counters are not writable here.
type AffiliateUpdate struct {
	Name           *string          `json:"name,omitempty"`
	Phone          *string          `json:"phone,omitempty"`
	CommissionRate *decimal.Decimal `json:"commissionRate,omitempty"`
	PaymentMethod  *string          `json:"paymentMethod,omitempty"`
	PaymentDetails *string          `json:"paymentDetails,omitempty"`
	Status         *AffiliateStatus `json:"status,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	CustomMessage  *string          `json:"customMessage,omitempty"`
}

type AffiliateFilter struct {
	Status *AffiliateStatus
	Page
}

// CodeLookup is the public answer to "is this ?ref= code usable".
type CodeLookup struct {
	Code          string `json:"code"`
	Valid         bool   `json:"valid"`
	AffiliateName string `json:"affiliateName,omitempty"`
}
