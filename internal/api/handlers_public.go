// internal/api/handlers_public.go
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"lead-funnel/internal/models"
	"lead-funnel/internal/store"
	createaffiliate "lead-funnel/internal/workers/affiliate/create-affiliate"
	createleadrecord "lead-funnel/internal/workers/intake/create-lead-record"

	"github.com/go-chi/chi/v5"
)

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := s.decodeJSON(w, r, &payload, false); err != nil {
		s.publicError(w, r, err)
		return
	}

	out, err := s.deps.Submit.Execute(r.Context(), &createleadrecord.Input{
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
		ClientIP:   s.deps.Proxies.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out.Lead)
}

// lookupCode answers whether a ?ref= code is usable. Concurrent lookups of
// the same code share one store read.
func (s *Server) lookupCode(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))

	v, err, _ := s.lookups.Do(code, func() (interface{}, error) {
		// Detached so one caller going away does not fail the others.
		ctx := context.WithoutCancel(r.Context())
		a, err := s.deps.Affiliates.FindActiveByCode(ctx, code)
		if stderrors.Is(err, store.ErrNotFound) {
			return models.CodeLookup{Code: code, Valid: false}, nil
		}
		if err != nil {
			return nil, err
		}
		return models.CodeLookup{Code: a.AffiliateCode, Valid: true, AffiliateName: a.Name}, nil
	})
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) createAffiliate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := s.decodeJSON(w, r, &payload, false); err != nil {
		s.publicError(w, r, err)
		return
	}

	out, err := s.deps.SignUp.Execute(r.Context(), &createaffiliate.Input{Payload: payload})
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out.Affiliate)
}
