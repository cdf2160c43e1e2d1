package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/models"
)

const affiliateColumns = `id, name, email, phone, affiliate_code, commission_rate,
	total_referrals, approved_referrals, total_commissions, paid_commissions, pending_commissions,
	payment_method, payment_details, status, notes, custom_message,
	created_at, updated_at, deleted_at`

type AffiliateRepository struct {
	base
}

func NewAffiliateRepository(pg *database.PostgresClient) *AffiliateRepository {
	return &AffiliateRepository{base: newBase(pg)}
}

// TryInsert is the conditional insert behind code allocation. It reports
// false when a.AffiliateCode is already taken and ErrDuplicate when the email
// is. Soft-deleted rows keep their codes, so codes are never reused.
func (r *AffiliateRepository) TryInsert(ctx context.Context, a *models.Affiliate) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	err := r.db.GetContext(ctx, a, `
		INSERT INTO affiliates (
			id, name, email, phone, affiliate_code, commission_rate,
			payment_method, payment_details, status, notes, custom_message
		) VALUES ($1, $2, $3, $4, upper($5), $6, $7, $8, $9, $10, $11)
		ON CONFLICT (affiliate_code) DO NOTHING
		RETURNING `+affiliateColumns,
		a.ID, a.Name, a.Email, a.Phone, a.AffiliateCode, a.CommissionRate,
		a.PaymentMethod, a.PaymentDetails, string(a.Status), a.Notes, a.CustomMessage,
	)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			if constraint == "affiliates_code_key" {
				return false, nil
			}
			return false, ErrDuplicate
		}
		return false, classify("insert affiliate", err)
	}
	return true, nil
}

// FindActiveByCode resolves a referral code, case-insensitively, to an
// active, non-deleted affiliate.
func (r *AffiliateRepository) FindActiveByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var a models.Affiliate
	err := r.db.GetContext(ctx, &a, `
		SELECT `+affiliateColumns+` FROM affiliates
		WHERE affiliate_code = $1 AND status = 'active' AND deleted_at IS NULL`,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("lookup affiliate code", err)
	}
	return &a, nil
}

func (r *AffiliateRepository) Get(ctx context.Context, id string) (*models.Affiliate, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var a models.Affiliate
	err := r.db.GetContext(ctx, &a, `
		SELECT `+affiliateColumns+` FROM affiliates WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("get affiliate", err)
	}
	return &a, nil
}

func (r *AffiliateRepository) List(ctx context.Context, f models.AffiliateFilter) ([]models.Affiliate, int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	cond := " WHERE deleted_at IS NULL"
	var args []interface{}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		cond += " AND status = $1"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM affiliates`+cond, args...); err != nil {
		return nil, 0, classify("count affiliates", err)
	}

	p := f.Page.Normalize()
	args = append(args, p.PageSize, p.Offset())
	query := fmt.Sprintf(`SELECT %s FROM affiliates%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		affiliateColumns, cond, len(args)-1, len(args))

	items := []models.Affiliate{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, classify("list affiliates", err)
	}
	return items, total, nil
}

// Update applies profile, rate and status changes. Counters are not touched.
func (r *AffiliateRepository) Update(ctx context.Context, id string, upd *models.AffiliateUpdate) (*models.Affiliate, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	sets := []string{"updated_at = now()"}
	args := []interface{}{id}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Phone != nil {
		set("phone", *upd.Phone)
	}
	if upd.CommissionRate != nil {
		set("commission_rate", *upd.CommissionRate)
	}
	if upd.PaymentMethod != nil {
		set("payment_method", *upd.PaymentMethod)
	}
	if upd.PaymentDetails != nil {
		set("payment_details", *upd.PaymentDetails)
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.Notes != nil {
		set("notes", *upd.Notes)
	}
	if upd.CustomMessage != nil {
		set("custom_message", *upd.CustomMessage)
	}

	var a models.Affiliate
	err := r.db.GetContext(ctx, &a, fmt.Sprintf(
		`UPDATE affiliates SET %s WHERE id = $1 AND deleted_at IS NULL RETURNING %s`,
		strings.Join(sets, ", "), affiliateColumns), args...)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("update affiliate", err)
	}
	return &a, nil
}

// SoftDelete hides the affiliate and deactivates its code. The row stays so
// the code is never handed out again.
func (r *AffiliateRepository) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE affiliates SET deleted_at = now(), status = 'inactive', updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return classify("delete affiliate", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AffiliateRepository) Audit(ctx context.Context, eventType, affiliateID string, details map[string]interface{}) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return Audit(ctx, r.db, eventType, "affiliate", affiliateID, details)
}
