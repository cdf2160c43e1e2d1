// internal/api/handlers_admin.go
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/validation"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"
	applycommission "lead-funnel/internal/workers/attribution/apply-commission"
	transitionleadstatus "lead-funnel/internal/workers/lifecycle/transition-lead-status"
	computeleadstats "lead-funnel/internal/workers/reporting/compute-lead-stats"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ==========================
// Leads
// ==========================

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	f := models.LeadFilter{State: q.Get("state"), Page: page}
	if v := q.Get("status"); v != "" {
		st, err := models.ParseLeadStatus(v)
		if err != nil {
			s.operatorError(w, r, errors.NewInvalidRequestError(err.Error()))
			return
		}
		f.Status = &st
	}
	if f.From, err = parseTime(q, "from"); err != nil {
		s.operatorError(w, r, err)
		return
	}
	if f.To, err = parseTime(q, "to"); err != nil {
		s.operatorError(w, r, err)
		return
	}

	leads, total, err := s.deps.Leads.List(r.Context(), f)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewPagedResult(leads, total, f.Page.Normalize()))
}

func (s *Server) updateLead(w http.ResponseWriter, r *http.Request) {
	var update map[string]interface{}
	if err := s.decodeJSON(w, r, &update, false); err != nil {
		s.operatorError(w, r, err)
		return
	}
	out, err := s.deps.Transitions.Execute(r.Context(), &transitionleadstatus.Input{
		LeadID: chi.URLParam(r, "id"),
		Update: update,
	})
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Lead)
}

func (s *Server) deleteLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Leads.Delete(r.Context(), id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			err = errors.NewResourceNotFoundError("lead", id)
		}
		s.operatorError(w, r, err)
		return
	}
	s.audit(r, s.deps.Leads.Audit, "lead_deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// Affiliates
// ==========================

func (s *Server) listAffiliates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	f := models.AffiliateFilter{Page: page}
	if v := q.Get("status"); v != "" {
		st := models.AffiliateStatus(v)
		if !st.Valid() {
			s.operatorError(w, r, errors.NewInvalidRequestError("unknown affiliate status "+v))
			return
		}
		f.Status = &st
	}

	items, total, err := s.deps.Affiliates.List(r.Context(), f)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewPagedResult(items, total, f.Page.Normalize()))
}

// affiliatePatch lists the writable profile fields. Counter fields are
// rejected as unknown.
type affiliatePatch struct {
	Name           *string          `json:"name" validate:"omitempty,min=1,max=120"`
	Phone          *string          `json:"phone" validate:"omitempty,max=32"`
	CommissionRate *decimal.Decimal `json:"commissionRate"`
	PaymentMethod  *string          `json:"paymentMethod" validate:"omitempty,max=50"`
	PaymentDetails *string          `json:"paymentDetails" validate:"omitempty,max=500"`
	Status         *string          `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	Notes          *string          `json:"notes" validate:"omitempty,max=2000"`
	CustomMessage  *string          `json:"customMessage" validate:"omitempty,max=500"`
}

func (s *Server) updateAffiliate(w http.ResponseWriter, r *http.Request) {
	var patch affiliatePatch
	if err := s.decodeJSON(w, r, &patch, true); err != nil {
		s.operatorError(w, r, err)
		return
	}
	if err := s.checkStruct(patch); err != nil {
		s.operatorError(w, r, err)
		return
	}
	if patch.CommissionRate != nil && patch.CommissionRate.IsNegative() {
		v := []validation.ValidationError{{Field: "commissionRate", Message: "commissionRate must be >= 0", Code: validation.CodeMinValue}}
		s.operatorError(w, r, errors.NewValidationFailedError(v, len(v)))
		return
	}

	upd := &models.AffiliateUpdate{
		Name:           patch.Name,
		Phone:          patch.Phone,
		PaymentMethod:  patch.PaymentMethod,
		PaymentDetails: patch.PaymentDetails,
		Notes:          patch.Notes,
		CustomMessage:  patch.CustomMessage,
	}
	if patch.CommissionRate != nil {
		rate := patch.CommissionRate.Round(2)
		upd.CommissionRate = &rate
	}
	if patch.Status != nil {
		st := models.AffiliateStatus(*patch.Status)
		upd.Status = &st
	}

	id := chi.URLParam(r, "id")
	a, err := s.deps.Affiliates.Update(r.Context(), id, upd)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			err = errors.NewResourceNotFoundError("affiliate", id)
		}
		s.operatorError(w, r, err)
		return
	}
	s.audit(r, s.deps.Affiliates.Audit, "affiliate_updated", id, map[string]interface{}{"update": upd})
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAffiliate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Affiliates.SoftDelete(r.Context(), id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			err = errors.NewResourceNotFoundError("affiliate", id)
		}
		s.operatorError(w, r, err)
		return
	}
	s.audit(r, s.deps.Affiliates.Audit, "affiliate_deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type payoutRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"required,max=128"`
}

func (s *Server) recordPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := s.decodeJSON(w, r, &req, true); err != nil {
		s.operatorError(w, r, err)
		return
	}
	if err := s.checkStruct(req); err != nil {
		s.operatorError(w, r, err)
		return
	}

	out, err := s.deps.Payouts.RecordPayout(r.Context(), &applycommission.PayoutInput{
		AffiliateID:    chi.URLParam(r, "id"),
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ==========================
// Stats
// ==========================

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	in := &computeleadstats.Input{}
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			s.operatorError(w, r, errors.NewInvalidRequestError("top must be between 1 and 50"))
			return
		}
		in.TopN = n
	}
	out, err := s.deps.Stats.Execute(r.Context(), in)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Stats)
}

// ==========================
// Helpers
// ==========================

func (s *Server) checkStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.NewInvalidRequestError(err.Error())
	}
	violations := make([]validation.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, validation.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()),
			Code:    violationCode(fe.Tag()),
		})
	}
	return errors.NewValidationFailedError(violations, len(violations))
}

func violationCode(tag string) string {
	switch tag {
	case "required":
		return validation.CodeRequired
	case "min":
		return validation.CodeMinLength
	case "max":
		return validation.CodeMaxLength
	case "oneof":
		return validation.CodeEnum
	}
	return validation.CodeInvalidValue
}

type auditFunc func(ctx context.Context, eventType, id string, details map[string]interface{}) error

// audit records who made an operator change. Failure is logged only.
func (s *Server) audit(r *http.Request, write auditFunc, eventType, id string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	if op := Operator(r.Context()); op != nil {
		details["operator"] = op.Username
	}
	if err := write(context.WithoutCancel(r.Context()), eventType, id, details); err != nil {
		s.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":     err,
			"eventType": eventType,
			"id":        id,
		})
	}
}

func parsePage(q url.Values) (models.Page, error) {
	var p models.Page
	for key, dst := range map[string]*int{"page": &p.Page, "pageSize": &p.PageSize} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, errors.NewInvalidRequestError(key + " must be a positive integer")
		}
		*dst = n
	}
	if p.Page > models.MaxPage {
		return p, errors.NewInvalidRequestError(fmt.Sprintf("page must be at most %d", models.MaxPage))
	}
	return p, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.NewInvalidRequestError(key + " must be RFC 3339 or YYYY-MM-DD")
}
