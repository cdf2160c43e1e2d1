// internal/workers/lifecycle/transition-lead-status/handler_test.go
package transitionleadstatus

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/validation"
	"lead-funnel/internal/models"
	"lead-funnel/internal/store"
	"lead-funnel/pkg/registry"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type recordingDispatcher struct {
	keys []string
	err  error
}

func (d *recordingDispatcher) DispatchKey(_ context.Context, key string) error {
	d.keys = append(d.keys, key)
	return d.err
}

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, *recordingDispatcher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := LoadConfig(registry.MustDefault())
	require.NoError(t, err)

	d := &recordingDispatcher{}
	repo := store.NewLeadRepository(database.NewPostgresFromDB(db, time.Second))
	h, err := NewHandler(cfg, repo, d, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h, mock, d
}

func expectGet(mock sqlmock.Sqlmock, id string, status models.LeadStatus) {
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "affiliate_id", "referral_code"}).
			AddRow(id, string(status), "aff-1", "JOH001"))
}

func updatedRow(id string, status models.LeadStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "status", "affiliate_id"}).AddRow(id, string(status), "aff-1")
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_ApproveEmitsEventAndDispatches(t *testing.T) {
	h, mock, d := newTestHandler(t)

	expectGet(mock, "l1", models.StatusQualified)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE leads SET updated_at = now\(\), status = \$3 WHERE id = \$1 AND status = \$2`).
		WithArgs("l1", "qualified", "approved").
		WillReturnRows(updatedRow("l1", models.StatusApproved))
	mock.ExpectExec(`INSERT INTO outbox_events`).
		WithArgs(sqlmock.AnyArg(), "l1", models.EventLeadStatusChanged, "l1:approved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("lead_status_changed", "lead", "l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	out, err := h.Execute(context.Background(), &Input{LeadID: "l1", Update: map[string]interface{}{"status": "approved"}})

	require.NoError(t, err)
	assert.True(t, out.StatusChanged)
	assert.Equal(t, models.StatusApproved, out.Lead.Status)
	assert.Equal(t, "l1:approved", out.EventKey)
	assert.Equal(t, []string{"l1:approved"}, d.keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_IllegalTransition(t *testing.T) {
	tests := []struct {
		from models.LeadStatus
		to   string
	}{
		{models.StatusNew, "approved"},
		{models.StatusNew, "installed"},
		{models.StatusQualified, "contacted"},
		{models.StatusInstalled, "rejected"},
		{models.StatusRejected, "new"},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+tt.to, func(t *testing.T) {
			h, mock, d := newTestHandler(t)
			expectGet(mock, "l1", tt.from)

			_, err := h.Execute(context.Background(), &Input{LeadID: "l1", Update: map[string]interface{}{"status": tt.to}})

			var ite *IllegalTransitionError
			require.True(t, stderrors.As(err, &ite))
			assert.Equal(t, tt.from, ite.From)
			assert.Equal(t, models.LeadStatus(tt.to), ite.To)

			se := errors.Normalize(err)
			assert.Equal(t, errors.ErrCodeIllegalTransition, se.Code)
			assert.Equal(t, http.StatusConflict, errors.HTTPStatus(se.Code))
			assert.Empty(t, d.keys)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_SameStatusWithNotesIsNotAnEdge(t *testing.T) {
	h, mock, d := newTestHandler(t)

	expectGet(mock, "l1", models.StatusContacted)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE leads SET updated_at = now\(\), notes = \$3 WHERE id = \$1 AND status = \$2`).
		WithArgs("l1", "contacted", "called twice").
		WillReturnRows(updatedRow("l1", models.StatusContacted))
	mock.ExpectCommit()

	out, err := h.Execute(context.Background(), &Input{LeadID: "l1", Update: map[string]interface{}{
		"status": "contacted",
		"notes":  "called twice",
	}})

	require.NoError(t, err)
	assert.False(t, out.StatusChanged)
	assert.Empty(t, out.EventKey)
	assert.Empty(t, d.keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_ConcurrentWriterWins(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	expectGet(mock, "l1", models.StatusQualified)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE leads`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := h.Execute(context.Background(), &Input{LeadID: "l1", Update: map[string]interface{}{"status": "approved"}})

	se := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeConcurrentUpdate, se.Code)
	assert.True(t, se.Retryable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_NotFound(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`FROM leads WHERE id = \$1`).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := h.Execute(context.Background(), &Input{LeadID: "nope", Update: map[string]interface{}{"status": "contacted"}})

	assert.Equal(t, errors.ErrCodeResourceNotFound, errors.Normalize(err).Code)
}

func TestHandler_Execute_DispatchFailureIsNonFatal(t *testing.T) {
	h, mock, d := newTestHandler(t)
	d.err = stderrors.New("sns unavailable")

	expectGet(mock, "l1", models.StatusNew)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE leads`).WillReturnRows(updatedRow("l1", models.StatusContacted))
	mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(stderrors.New("audit down"))

	out, err := h.Execute(context.Background(), &Input{LeadID: "l1", Update: map[string]interface{}{"status": "contacted"}})

	require.NoError(t, err)
	assert.True(t, out.StatusChanged)
	assert.Len(t, d.keys, 1)
}

func TestHandler_Execute_Validation(t *testing.T) {
	tests := []struct {
		name   string
		update map[string]interface{}
		field  string
		code   string
	}{
		{"counters are not writable", map[string]interface{}{"affiliateId": "x"}, "affiliateId", validation.CodeExtraField},
		{"unknown status", map[string]interface{}{"status": "archived"}, "status", validation.CodeEnum},
		{"negative earnings", map[string]interface{}{"monthlyEarnings": -3}, "monthlyEarnings", validation.CodeMinValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock, _ := newTestHandler(t)

			_, err := h.Execute(context.Background(), &Input{LeadID: "l1", Update: tt.update})

			se := errors.Normalize(err)
			require.Equal(t, errors.ErrCodeValidationFailed, se.Code)
			v := se.Metadata["violations"].([]validation.ValidationError)
			require.NotEmpty(t, v)
			assert.Equal(t, tt.field, v[0].Field)
			assert.Equal(t, tt.code, v[0].Code)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestParseUpdate(t *testing.T) {
	upd, err := parseUpdate(map[string]interface{}{
		"monthlyEarnings":  125.456,
		"installationDate": "2026-05-01T09:00:00-05:00",
		"equipmentType":    "router",
	})
	require.NoError(t, err)
	assert.Equal(t, "125.46", upd.MonthlyEarnings.StringFixed(2))
	assert.Equal(t, time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC), *upd.InstallationDate)
	assert.Equal(t, "router", *upd.EquipmentType)
	assert.Nil(t, upd.Status)
	assert.True(t, upd.HasFieldChanges())
}
