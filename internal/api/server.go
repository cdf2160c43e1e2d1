// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"lead-funnel/internal/common/auth"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/models"
	"lead-funnel/internal/ratelimit"
	applycommission "lead-funnel/internal/workers/attribution/apply-commission"
	createaffiliate "lead-funnel/internal/workers/affiliate/create-affiliate"
	createleadrecord "lead-funnel/internal/workers/intake/create-lead-record"
	transitionleadstatus "lead-funnel/internal/workers/lifecycle/transition-lead-status"
	computeleadstats "lead-funnel/internal/workers/reporting/compute-lead-stats"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxBodyBytes = 64 << 10

type LeadSubmitter interface {
	Execute(ctx context.Context, input *createleadrecord.Input) (*createleadrecord.Output, error)
}

type AffiliateCreator interface {
	Execute(ctx context.Context, input *createaffiliate.Input) (*createaffiliate.Output, error)
}

type LeadTransitioner interface {
	Execute(ctx context.Context, input *transitionleadstatus.Input) (*transitionleadstatus.Output, error)
}

type StatsComputer interface {
	Execute(ctx context.Context, input *computeleadstats.Input) (*computeleadstats.Output, error)
}

type PayoutRecorder interface {
	RecordPayout(ctx context.Context, input *applycommission.PayoutInput) (*applycommission.PayoutOutput, error)
}

type LeadAdmin interface {
	List(ctx context.Context, f models.LeadFilter) ([]models.Lead, int, error)
	Delete(ctx context.Context, id string) error
	Audit(ctx context.Context, eventType, leadID string, details map[string]interface{}) error
}

type AffiliateAdmin interface {
	FindActiveByCode(ctx context.Context, code string) (*models.Affiliate, error)
	List(ctx context.Context, f models.AffiliateFilter) ([]models.Affiliate, int, error)
	Update(ctx context.Context, id string, upd *models.AffiliateUpdate) (*models.Affiliate, error)
	SoftDelete(ctx context.Context, id string) error
	Audit(ctx context.Context, eventType, affiliateID string, details map[string]interface{}) error
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// Deps collects what the router serves. Limiter and Tokens may be nil, which
// disables rate limiting and operator authentication respectively.
type Deps struct {
	Submit       LeadSubmitter
	SignUp       AffiliateCreator
	Transitions  LeadTransitioner
	Stats        StatsComputer
	Payouts      PayoutRecorder
	Leads        LeadAdmin
	Affiliates   AffiliateAdmin
	Limiter      *ratelimit.Limiter
	Proxies      *ratelimit.Proxies
	Tokens       TokenValidator
	RequiredRole string
	MaxBodyBytes int64
}

type Server struct {
	deps     Deps
	validate *validator.Validate
	lookups  singleflight.Group
	logger   logger.Logger
}

func NewServer(deps Deps, log logger.Logger) *Server {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		deps:     deps,
		validate: v,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Routes builds the public and operator API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.instrument)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.PolicySubmit))
			r.Post("/leads", s.submitLead)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.PolicyDefault))
			r.Get("/affiliates/lookup/{code}", s.lookupCode)
			r.Post("/affiliates", s.createAffiliate)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.limit(ratelimit.PolicyDefault))
			r.Use(s.operatorAuth)
			r.Get("/leads", s.listLeads)
			r.Patch("/leads/{id}", s.updateLead)
			r.Delete("/leads/{id}", s.deleteLead)
			r.Get("/affiliates", s.listAffiliates)
			r.Patch("/affiliates/{id}", s.updateAffiliate)
			r.Delete("/affiliates/{id}", s.deleteAffiliate)
			r.Post("/affiliates/{id}/payouts", s.recordPayout)
			r.Get("/stats", s.getStats)
		})
	})
	return r
}

func (s *Server) limit(policy string) func(http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.deps.Limiter.Middleware(policy, s.publicError)
}
