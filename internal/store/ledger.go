package store

import (
	"context"
	"database/sql"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	LedgerReferral = "referral"
	LedgerAccrual  = "accrual"
	LedgerReversal = "reversal"
	LedgerPayout   = "payout"
)

// Effect is the outcome of one ledger-guarded counter change. Applied is
// false when the idempotency key was already recorded or there was nothing
// to change.
type Effect struct {
	Kind    string
	Applied bool
	Amount  decimal.Decimal
}

// CommissionRepository moves affiliate counters. Each method records its
// idempotency key in commission_ledger and updates the counters in the same
// transaction, so a redelivered event changes nothing.
type CommissionRepository struct {
	base
}

func NewCommissionRepository(pg *database.PostgresClient) *CommissionRepository {
	return &CommissionRepository{base: newBase(pg)}
}

func claimKey(ctx context.Context, tx *sqlx.Tx, key, leadID, affiliateID, kind string, amount decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO commission_ledger (idempotency_key, lead_id, affiliate_id, kind, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, nullable(leadID), affiliateID, kind, amount,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ApplyReferral adds one to total_referrals.
func (r *CommissionRepository) ApplyReferral(ctx context.Context, key, leadID, affiliateID string) (Effect, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	eff := Effect{Kind: LedgerReferral}
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := claimKey(ctx, tx, key, leadID, affiliateID, LedgerReferral, decimal.Zero)
		if err != nil || !ok {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE affiliates SET total_referrals = total_referrals + 1, updated_at = now()
			WHERE id = $1`, affiliateID); err != nil {
			return err
		}
		eff.Applied = true
		return nil
	})
	return eff, classify("apply referral", err)
}

// ApplyAccrual credits the affiliate's current commission rate to total and
// pending and records the amount so a later reversal subtracts exactly it.
// A lead that already has a reversal row is never credited, which covers an
// approval delivered after its rejection.
func (r *CommissionRepository) ApplyAccrual(ctx context.Context, key, leadID, affiliateID string) (Effect, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	eff := Effect{Kind: LedgerAccrual}
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var rate decimal.Decimal
		err := tx.GetContext(ctx, &rate, `SELECT commission_rate FROM affiliates WHERE id = $1 FOR UPDATE`, affiliateID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		var reversed bool
		if err := tx.GetContext(ctx, &reversed, `
			SELECT EXISTS (SELECT 1 FROM commission_ledger WHERE lead_id = $1 AND kind = 'reversal')`,
			leadID); err != nil {
			return err
		}
		if reversed {
			return nil
		}

		ok, err := claimKey(ctx, tx, key, leadID, affiliateID, LedgerAccrual, rate)
		if err != nil || !ok {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE affiliates
			SET approved_referrals = approved_referrals + 1,
			    total_commissions = total_commissions + $2,
			    pending_commissions = pending_commissions + $2,
			    updated_at = now()
			WHERE id = $1`, affiliateID, rate); err != nil {
			return err
		}
		eff.Applied = true
		eff.Amount = rate
		return nil
	})
	return eff, classify("apply accrual", err)
}

// ApplyReversal undoes the accrual recorded for leadID. When nothing was
// accrued yet it still records a zero reversal so a late accrual for the same
// lead is skipped. Pending may go negative when the accrual was already paid
// out; payouts stay blocked until new accruals cover the clawback.
func (r *CommissionRepository) ApplyReversal(ctx context.Context, key, leadID, affiliateID string) (Effect, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	eff := Effect{Kind: LedgerReversal}
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		// Same row lock as ApplyAccrual so the two serialise per affiliate.
		var one int
		err := tx.GetContext(ctx, &one, `SELECT 1 FROM affiliates WHERE id = $1 FOR UPDATE`, affiliateID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		var accrued decimal.Decimal
		err = tx.GetContext(ctx, &accrued, `
			SELECT amount FROM commission_ledger
			WHERE lead_id = $1 AND affiliate_id = $2 AND kind = 'accrual'`, leadID, affiliateID)
		found := err == nil
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if !found {
			accrued = decimal.Zero
		}

		ok, err := claimKey(ctx, tx, key, leadID, affiliateID, LedgerReversal, accrued)
		if err != nil || !ok || !found {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE affiliates
			SET approved_referrals = approved_referrals - 1,
			    total_commissions = total_commissions - $2,
			    pending_commissions = pending_commissions - $2,
			    updated_at = now()
			WHERE id = $1`, affiliateID, accrued); err != nil {
			return err
		}
		eff.Applied = true
		eff.Amount = accrued
		return nil
	})
	return eff, classify("apply reversal", err)
}

// RecordPayout moves amount from pending to paid. Total is unchanged.
func (r *CommissionRepository) RecordPayout(ctx context.Context, key, affiliateID string, amount decimal.Decimal) (*models.Affiliate, bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var (
		a       models.Affiliate
		applied bool
	)
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := claimKey(ctx, tx, key, "", affiliateID, LedgerPayout, amount)
		if err != nil {
			return err
		}
		if !ok {
			err := tx.GetContext(ctx, &a, `SELECT `+affiliateColumns+` FROM affiliates WHERE id = $1`, affiliateID)
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}

		err = tx.GetContext(ctx, &a, `
			UPDATE affiliates
			SET paid_commissions = paid_commissions + $2,
			    pending_commissions = pending_commissions - $2,
			    updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL AND pending_commissions >= $2
			RETURNING `+affiliateColumns, affiliateID, amount)
		if err == sql.ErrNoRows {
			return ErrInsufficientPending
		}
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, classify("record payout", err)
	}
	return &a, applied, nil
}
