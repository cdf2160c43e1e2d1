// internal/workers/affiliate/create-affiliate/handler_test.go
package createaffiliate

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/database"
	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/store"
	"lead-funnel/pkg/registry"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := LoadConfig(registry.MustDefault(), config.AttributionConfig{DefaultCommissionRate: "50", MaxCodeAttempts: 10})
	require.NoError(t, err)

	repo := store.NewAffiliateRepository(database.NewPostgresFromDB(db, time.Second))
	h, err := NewHandler(cfg, repo, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h, mock
}

func signUp() *Input {
	return &Input{Payload: map[string]interface{}{
		"name":  "John Smith",
		"email": "John@Example.com",
		"phone": "555-123-4567",
	}}
}

func insertedRow(code string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "affiliate_code", "commission_rate", "status"}).
		AddRow("a1", "John Smith", "john@example.com", code, "50.00", "active")
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`INSERT INTO affiliates`).
		WithArgs(sqlmock.AnyArg(), "John Smith", "john@example.com", "555-123-4567", sqlmock.AnyArg(),
			sqlmock.AnyArg(), "", "", "active", "", "").
		WillReturnRows(insertedRow("JOHSMI123"))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("affiliate_created", "affiliate", "a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	out, err := h.Execute(context.Background(), signUp())

	require.NoError(t, err)
	assert.Equal(t, "JOHSMI123", out.Affiliate.AffiliateCode)
	assert.True(t, out.Affiliate.CommissionRate.Equal(decimal.NewFromInt(50)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_CodeCollisionRetries(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`INSERT INTO affiliates`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO affiliates`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "affiliates_code_key"})
	mock.ExpectQuery(`INSERT INTO affiliates`).WillReturnRows(insertedRow("JOHSMI777"))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(1, 1))

	out, err := h.Execute(context.Background(), signUp())

	require.NoError(t, err)
	assert.Equal(t, "JOHSMI777", out.Affiliate.AffiliateCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_DuplicateEmailStopsProbing(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`INSERT INTO affiliates`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "affiliates_email_key"})

	out, err := h.Execute(context.Background(), signUp())

	assert.Nil(t, out)
	assert.True(t, stderrors.Is(err, ErrDuplicateAffiliate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_AuditFailureIsNonFatal(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`INSERT INTO affiliates`).WillReturnRows(insertedRow("JOHSMI001"))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(stderrors.New("disk full"))

	out, err := h.Execute(context.Background(), signUp())

	require.NoError(t, err)
	assert.Equal(t, "JOHSMI001", out.Affiliate.AffiliateCode)
}

func TestHandler_Execute_ValidationFailure(t *testing.T) {
	h, mock := newTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{Payload: map[string]interface{}{"name": "J"}})

	se := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeValidationFailed, se.Code)
	assert.NotNil(t, se.Metadata["violations"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadConfig_RejectsBadRate(t *testing.T) {
	_, err := LoadConfig(registry.MustDefault(), config.AttributionConfig{DefaultCommissionRate: "-5"})
	assert.Error(t, err)
}
