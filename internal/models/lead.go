// internal/models/lead.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money fields render as JSON numbers for the dashboard.
	decimal.MarshalJSONWithoutQuotes = true
}

// Lead is one prospective participant captured by the intake form.
type Lead struct {
	ID               string              `json:"id" db:"id"`
	Email            string              `json:"email" db:"email"`
	FullName         string              `json:"fullName" db:"full_name"`
	Phone            string              `json:"phone" db:"phone"`
	City             string              `json:"city" db:"city"`
	State            string              `json:"state" db:"state"`
	HasResidence     bool                `json:"hasResidence" db:"has_residence"`
	HasInternet      bool                `json:"hasInternet" db:"has_internet"`
	HasSpace         bool                `json:"hasSpace" db:"has_space"`
	ReferralCode     *string             `json:"referralCode,omitempty" db:"referral_code"`
	AffiliateID      *string             `json:"affiliateId,omitempty" db:"affiliate_id"`
	ReferralSource   string              `json:"referralSource" db:"referral_source"`
	SessionID        string              `json:"sessionId" db:"session_id"`
	UTMSource        string              `json:"utmSource" db:"utm_source"`
	UTMMedium        string              `json:"utmMedium" db:"utm_medium"`
	UTMCampaign      string              `json:"utmCampaign" db:"utm_campaign"`
	IPAddress        string              `json:"ipAddress" db:"ip_address"`
	UserAgent        string              `json:"userAgent" db:"user_agent"`
	DeviceType       string              `json:"deviceType" db:"device_type"`
	ScreenResolution string              `json:"screenResolution" db:"screen_resolution"`
	SubmittedAt      time.Time           `json:"submittedAt" db:"submitted_at"`
	TimeToComplete   *float64            `json:"timeToComplete,omitempty" db:"time_to_complete"`
	Status           LeadStatus          `json:"status" db:"status"`
	MonthlyEarnings  decimal.NullDecimal `json:"monthlyEarnings" db:"monthly_earnings"`
	EquipmentType    string              `json:"equipmentType" db:"equipment_type"`
	InstallationDate *time.Time          `json:"installationDate,omitempty" db:"installation_date"`
	Notes            string              `json:"notes" db:"notes"`
	CreatedAt        time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time           `json:"updatedAt" db:"updated_at"`
}

// IsQualified reports whether all three qualification answers are yes.
func (l *Lead) IsQualified() bool {
	return l.HasResidence && l.HasInternet && l.HasSpace
}

// LeadDraft is a validated, normalized submission ready for insert.
type LeadDraft struct {
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	Phone            string    `json:"phone"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	HasResidence     bool      `json:"hasResidence"`
	HasInternet      bool      `json:"hasInternet"`
	HasSpace         bool      `json:"hasSpace"`
	ReferralCode     string    `json:"referralCode,omitempty"`
	ReferralSource   string    `json:"referralSource"`
	SessionID        string    `json:"sessionId,omitempty"`
	UTMSource        string    `json:"utmSource,omitempty"`
	UTMMedium        string    `json:"utmMedium,omitempty"`
	UTMCampaign      string    `json:"utmCampaign,omitempty"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	UserAgent        string    `json:"userAgent,omitempty"`
	DeviceType       string    `json:"deviceType,omitempty"`
	ScreenResolution string    `json:"screenResolution,omitempty"`
	SubmittedAt      time.Time `json:"submittedAt"`
	TimeToComplete   *float64  `json:"timeToComplete,omitempty"`
}

// LeadUpdate carries the operator-mutable fields. Nil means unchanged.
type LeadUpdate struct {
	Status           *LeadStatus      `json:"status,omitempty"`
	FullName         *string          `json:"fullName,omitempty"`
	Phone            *string          `json:"phone,omitempty"`
	City             *string          `json:"city,omitempty"`
	State            *string          `json:"state,omitempty"`
	MonthlyEarnings  *decimal.Decimal `json:"monthlyEarnings,omitempty"`
	EquipmentType    *string          `json:"equipmentType,omitempty"`
	InstallationDate *time.Time       `json:"installationDate,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

// HasFieldChanges reports whether anything besides status is being set.
func (u *LeadUpdate) HasFieldChanges() bool {
	return u.FullName != nil || u.Phone != nil || u.City != nil || u.State != nil ||
		u.MonthlyEarnings != nil || u.EquipmentType != nil || u.InstallationDate != nil || u.Notes != nil
}

// LeadFilter narrows the operator lead listing.
type LeadFilter struct {
	Status *LeadStatus
	State  string
	From   *time.Time
	To     *time.Time
	Page
}
