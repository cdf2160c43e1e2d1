package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/models"

	"github.com/jmoiron/sqlx"
)

const leadColumns = `id, email, full_name, phone, city, state,
	has_residence, has_internet, has_space,
	referral_code, affiliate_id, referral_source, session_id,
	utm_source, utm_medium, utm_campaign, ip_address, user_agent, device_type, screen_resolution,
	submitted_at, time_to_complete, status, monthly_earnings, equipment_type, installation_date, notes,
	created_at, updated_at`

type LeadRepository struct {
	base
}

func NewLeadRepository(pg *database.PostgresClient) *LeadRepository {
	return &LeadRepository{base: newBase(pg)}
}

// InsertWithEvent inserts lead and its outbox event in one transaction. It
// reports false, with nothing written, when the email already exists.
func (r *LeadRepository) InsertWithEvent(ctx context.Context, lead *models.Lead, ev *models.AttributionEvent) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	inserted := false
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := sqlx.NamedQueryContext(ctx, tx, `
			INSERT INTO leads (
				id, email, full_name, phone, city, state,
				has_residence, has_internet, has_space,
				referral_code, affiliate_id, referral_source, session_id,
				utm_source, utm_medium, utm_campaign, ip_address, user_agent, device_type, screen_resolution,
				submitted_at, time_to_complete, status
			) VALUES (
				:id, :email, :full_name, :phone, :city, :state,
				:has_residence, :has_internet, :has_space,
				:referral_code, :affiliate_id, :referral_source, :session_id,
				:utm_source, :utm_medium, :utm_campaign, :ip_address, :user_agent, :device_type, :screen_resolution,
				:submitted_at, :time_to_complete, :status
			)
			ON CONFLICT (email) DO NOTHING
			RETURNING created_at, updated_at`, lead)
		if err != nil {
			return err
		}
		if rows.Next() {
			inserted = true
			if err := rows.Scan(&lead.CreatedAt, &lead.UpdatedAt); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		if err := AppendEvent(ctx, tx, ev); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return false, nil
		}
		return false, classify("insert lead", err)
	}
	return inserted, nil
}

func (r *LeadRepository) Get(ctx context.Context, id string) (*models.Lead, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var lead models.Lead
	err := r.db.GetContext(ctx, &lead, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("get lead", err)
	}
	return &lead, nil
}

// CountByEmail is used by tests and reconciliation to confirm dedup.
func (r *LeadRepository) CountByEmail(ctx context.Context, email string) (int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM leads WHERE email = $1`, strings.ToLower(email)); err != nil {
		return 0, classify("count leads", err)
	}
	return n, nil
}

// List returns one page of leads, newest first, plus the filtered total.
func (r *LeadRepository) List(ctx context.Context, f models.LeadFilter) ([]models.Lead, int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.State != "" {
		add("state = $%d", f.State)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM leads`+cond, args...); err != nil {
		return nil, 0, classify("count leads", err)
	}

	p := f.Page.Normalize()
	args = append(args, p.PageSize, p.Offset())
	query := fmt.Sprintf(`SELECT %s FROM leads%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		leadColumns, cond, len(args)-1, len(args))

	leads := []models.Lead{}
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		return nil, 0, classify("list leads", err)
	}
	return leads, total, nil
}

// UpdateWithEvent applies upd guarded by the lead still having status
// expected. ev, when non-nil, is appended to the outbox in the same
// transaction. ErrStale means another writer moved the lead first.
func (r *LeadRepository) UpdateWithEvent(ctx context.Context, id string, expected models.LeadStatus, upd *models.LeadUpdate, ev *models.AttributionEvent) (*models.Lead, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	sets := []string{"updated_at = now()"}
	args := []interface{}{id, string(expected)}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.FullName != nil {
		set("full_name", *upd.FullName)
	}
	if upd.Phone != nil {
		set("phone", *upd.Phone)
	}
	if upd.City != nil {
		set("city", *upd.City)
	}
	if upd.State != nil {
		set("state", *upd.State)
	}
	if upd.MonthlyEarnings != nil {
		set("monthly_earnings", *upd.MonthlyEarnings)
	}
	if upd.EquipmentType != nil {
		set("equipment_type", *upd.EquipmentType)
	}
	if upd.InstallationDate != nil {
		set("installation_date", *upd.InstallationDate)
	}
	if upd.Notes != nil {
		set("notes", *upd.Notes)
	}

	query := fmt.Sprintf(`UPDATE leads SET %s WHERE id = $1 AND status = $2 RETURNING %s`,
		strings.Join(sets, ", "), leadColumns)

	var lead models.Lead
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &lead, query, args...); err != nil {
			if err == sql.ErrNoRows {
				return ErrStale
			}
			return err
		}
		if ev != nil {
			return AppendEvent(ctx, tx, ev)
		}
		return nil
	})
	if err != nil {
		return nil, classify("update lead", err)
	}
	return &lead, nil
}

// Delete physically removes a lead. Affiliate counters are left as they are.
func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return classify("delete lead", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Audit records a best-effort audit row outside any transaction.
func (r *LeadRepository) Audit(ctx context.Context, eventType, leadID string, details map[string]interface{}) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return Audit(ctx, r.db, eventType, "lead", leadID, details)
}
