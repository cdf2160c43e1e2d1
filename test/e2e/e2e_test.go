//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-funnel/internal/api"
	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/database"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/models"
	"lead-funnel/internal/outbox"
	"lead-funnel/internal/ratelimit"
	"lead-funnel/internal/store"
	"lead-funnel/pkg/registry"

	createaffiliate "lead-funnel/internal/workers/affiliate/create-affiliate"
	applycommission "lead-funnel/internal/workers/attribution/apply-commission"
	createleadrecord "lead-funnel/internal/workers/intake/create-lead-record"
	validateleadintake "lead-funnel/internal/workers/intake/validate-lead-intake"
	transitionleadstatus "lead-funnel/internal/workers/lifecycle/transition-lead-status"
	computeleadstats "lead-funnel/internal/workers/reporting/compute-lead-stats"
)

// stack is the engine wired against real PostgreSQL and Redis, served by an
// in-process HTTP server.
type stack struct {
	srv        *httptest.Server
	affiliates *store.AffiliateRepository
	relay      *outbox.Relay
}

var (
	e2e      *stack
	stackErr error
)

func TestMain(m *testing.M) {
	var cleanup func()
	e2e, cleanup, stackErr = startStack()

	code := m.Run()

	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func startStack() (*stack, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Database.Postgres.Host = envOr("DB_HOST", "localhost")
	cfg.Database.Redis.Address = envOr("REDIS_ADDRESS", "localhost:6379")
	// A fresh key space per run so earlier runs do not eat the budget.
	cfg.RateLimit.KeyPrefix = "e2e:" + uuid.NewString()

	log := logger.NewNoOpLogger()
	ctx := context.Background()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}

	reg := registry.MustDefault()
	leads := store.NewLeadRepository(pg)
	affiliates := store.NewAffiliateRepository(pg)
	events := store.NewOutboxRepository(pg)

	commission := applycommission.NewHandler(applycommission.LoadConfig(cfg.Attribution), store.NewCommissionRepository(pg), affiliates, log)
	settings := outbox.SettingsFrom(cfg.Outbox)
	dispatcher := outbox.NewDispatcher(events, settings, log, outbox.NewCommissionSink(commission))

	validateCfg, err := validateleadintake.LoadConfig(reg)
	if err != nil {
		return nil, nil, err
	}
	validator, err := validateleadintake.NewHandler(validateCfg, log)
	if err != nil {
		return nil, nil, err
	}
	signUpCfg, err := createaffiliate.LoadConfig(reg, cfg.Attribution)
	if err != nil {
		return nil, nil, err
	}
	signUp, err := createaffiliate.NewHandler(signUpCfg, affiliates, log)
	if err != nil {
		return nil, nil, err
	}
	transitionCfg, err := transitionleadstatus.LoadConfig(reg)
	if err != nil {
		return nil, nil, err
	}
	transitions, err := transitionleadstatus.NewHandler(transitionCfg, leads, dispatcher, log)
	if err != nil {
		return nil, nil, err
	}

	server := api.NewServer(api.Deps{
		Submit:       createleadrecord.NewHandler(createleadrecord.LoadConfig(cfg.Attribution), validator, affiliates, leads, dispatcher, log),
		SignUp:       signUp,
		Transitions:  transitions,
		Stats:        computeleadstats.NewHandler(computeleadstats.LoadConfig(cfg.Stats), store.NewStatsRepository(pg), log),
		Payouts:      commission,
		Leads:        leads,
		Affiliates:   affiliates,
		Limiter:      ratelimit.New(rdb.Client, cfg.RateLimit, log),
		MaxBodyBytes: api.DefaultMaxBodyBytes,
	}, log)

	s := &stack{
		srv:        httptest.NewServer(server.Routes()),
		affiliates: affiliates,
		relay:      outbox.NewRelay(events, dispatcher, settings, nil, log),
	}
	return s, func() {
		s.srv.Close()
		rdb.Close()
		pg.Close()
	}, nil
}

func requireStack(t *testing.T) *stack {
	t.Helper()
	if stackErr != nil {
		t.Skipf("e2e stack unavailable: %v", stackErr)
	}
	return e2e
}

func (s *stack) call(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func leadPayload(email, code string) map[string]interface{} {
	p := map[string]interface{}{
		"fullName":     "E2E Prospect",
		"email":        email,
		"phone":        "+1 555 010 2000",
		"city":         "Austin",
		"state":        "TX",
		"hasResidence": true,
		"hasInternet":  true,
		"hasSpace":     true,
		"utmSource":    "e2e",
	}
	if code != "" {
		p["referralCode"] = code
	}
	return p
}

// advance walks a lead through each status in turn via the admin API.
func (s *stack) advance(t *testing.T, leadID string, statuses ...string) models.Lead {
	t.Helper()
	var lead models.Lead
	for _, st := range statuses {
		status := s.call(t, http.MethodPatch, "/api/v1/admin/leads/"+leadID, map[string]interface{}{"status": st}, &lead)
		require.Equal(t, http.StatusOK, status, "transition to %s", st)
	}
	return lead
}

type errorEnvelope struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

// ==========================
// Referral lifecycle
// ==========================

func TestReferralLifecycle(t *testing.T) {
	s := requireStack(t)
	ctx := context.Background()
	run := uuid.NewString()[:8]

	var aff models.Affiliate
	status := s.call(t, http.MethodPost, "/api/v1/affiliates", map[string]interface{}{
		"name":  "E2E Partner " + run,
		"email": "partner-" + run + "@example.com",
	}, &aff)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, aff.AffiliateCode)
	t.Logf("affiliate %s code %s", aff.ID, aff.AffiliateCode)

	// Codes are matched case-insensitively.
	var lookup models.CodeLookup
	status = s.call(t, http.MethodGet, "/api/v1/affiliates/lookup/"+strings.ToLower(aff.AffiliateCode), nil, &lookup)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, lookup.Valid)
	assert.Equal(t, aff.Name, lookup.AffiliateName)

	email := "prospect-" + run + "@example.com"
	var lead models.Lead
	status = s.call(t, http.MethodPost, "/api/v1/leads", leadPayload(email, aff.AffiliateCode), &lead)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, lead.AffiliateID)
	assert.Equal(t, aff.ID, *lead.AffiliateID)
	assert.Equal(t, models.StatusNew, lead.Status)

	var dup errorEnvelope
	status = s.call(t, http.MethodPost, "/api/v1/leads", leadPayload(strings.ToUpper(email), ""), &dup)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_LEAD", dup.Error.Code)

	require.Eventually(t, func() bool {
		a, err := s.affiliates.Get(ctx, aff.ID)
		return err == nil && a.TotalReferrals == 1
	}, 5*time.Second, 100*time.Millisecond, "referral not counted")

	// Approval accrues the affiliate's rate as pending commission.
	updated := s.advance(t, lead.ID, "contacted", "qualified", "approved")
	assert.Equal(t, models.StatusApproved, updated.Status)

	require.Eventually(t, func() bool {
		a, err := s.affiliates.Get(ctx, aff.ID)
		return err == nil && a.ApprovedReferrals == 1 && a.PendingCommissions.Equal(aff.CommissionRate)
	}, 5*time.Second, 100*time.Millisecond, "accrual not applied")

	// approved -> rejected reverses what the approval accrued.
	updated = s.advance(t, lead.ID, "rejected")
	assert.Equal(t, models.StatusRejected, updated.Status)

	require.Eventually(t, func() bool {
		a, err := s.affiliates.Get(ctx, aff.ID)
		return err == nil && a.PendingCommissions.IsZero() && a.TotalCommissions.IsZero()
	}, 5*time.Second, 100*time.Millisecond, "reversal not applied")

	// Nothing left undelivered for this lead after a relay pass.
	_, err := s.relay.ProcessOnce(ctx)
	require.NoError(t, err)

	a, err := s.affiliates.Get(ctx, aff.ID)
	require.NoError(t, err)
	assert.True(t, a.Balanced())
	assert.Equal(t, 1, a.TotalReferrals)
	assert.Equal(t, 0, a.ApprovedReferrals)
}

func TestIllegalTransitionIsRejected(t *testing.T) {
	s := requireStack(t)
	run := uuid.NewString()[:8]

	var lead models.Lead
	status := s.call(t, http.MethodPost, "/api/v1/leads", leadPayload("direct-"+run+"@example.com", ""), &lead)
	require.Equal(t, http.StatusCreated, status)
	assert.Nil(t, lead.AffiliateID)
	assert.Equal(t, "direct", lead.ReferralSource)

	var body errorEnvelope
	status = s.call(t, http.MethodPatch, "/api/v1/admin/leads/"+lead.ID, map[string]interface{}{"status": "installed"}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ILLEGAL_TRANSITION", body.Error.Code)
}

func TestPayoutMovesPendingToPaid(t *testing.T) {
	s := requireStack(t)
	ctx := context.Background()
	run := uuid.NewString()[:8]

	var aff models.Affiliate
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/api/v1/affiliates", map[string]interface{}{
		"name":  "Payout Partner " + run,
		"email": "payout-" + run + "@example.com",
	}, &aff))

	var lead models.Lead
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/api/v1/leads", leadPayload("paid-"+run+"@example.com", aff.AffiliateCode), &lead))
	s.advance(t, lead.ID, "contacted", "qualified", "approved")

	require.Eventually(t, func() bool {
		a, err := s.affiliates.Get(ctx, aff.ID)
		return err == nil && a.PendingCommissions.Equal(aff.CommissionRate)
	}, 5*time.Second, 100*time.Millisecond)

	payout := map[string]interface{}{"amount": "20", "idempotencyKey": "e2e-" + run}
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/v1/admin/affiliates/"+aff.ID+"/payouts", payout, nil))
	// Replaying the same key changes nothing.
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/v1/admin/affiliates/"+aff.ID+"/payouts", payout, nil))

	a, err := s.affiliates.Get(ctx, aff.ID)
	require.NoError(t, err)
	assert.True(t, a.PaidCommissions.Equal(decimal.NewFromInt(20)), "paid %s", a.PaidCommissions)
	assert.True(t, a.Balanced())

	var body errorEnvelope
	status := s.call(t, http.MethodPost, "/api/v1/admin/affiliates/"+aff.ID+"/payouts", map[string]interface{}{
		"amount": "100000", "idempotencyKey": "e2e-over-" + run,
	}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_PENDING_COMMISSION", body.Error.Code)
}

func TestStatsSnapshot(t *testing.T) {
	s := requireStack(t)

	var stats models.LeadStats
	status := s.call(t, http.MethodGet, "/api/v1/admin/stats?top=3", nil, &stats)
	require.Equal(t, http.StatusOK, status)
	assert.LessOrEqual(t, len(stats.TopStates), 3)
	assert.GreaterOrEqual(t, stats.ConversionRate, 0.0)
	assert.LessOrEqual(t, stats.ConversionRate, 1.0)
}
