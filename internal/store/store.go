// Package store is the Postgres identity store: leads, affiliates, the
// commission ledger and the outbox. Uniqueness and counters are enforced in
// SQL (unique indexes, ON CONFLICT, col = col + $n), never read-then-write.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/common/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound = stderrors.New("record not found")
	// ErrStale means a compare-and-swap lost: the row changed since it was read.
	ErrStale     = stderrors.New("record changed concurrently")
	ErrDuplicate = stderrors.New("unique constraint violated")
	// ErrInsufficientPending is returned when a payout exceeds the pending balance.
	ErrInsufficientPending = stderrors.New("insufficient pending commission")
)

const (
	uniqueViolation               = "23505"
	dataException   pq.ErrorClass = "22"
)

// DefaultTimeout bounds a store call when no query timeout is configured.
const DefaultTimeout = 3 * time.Second

type base struct {
	db      *sqlx.DB
	timeout time.Duration
}

func newBase(pg *database.PostgresClient) base {
	t := pg.QueryTimeout
	if t <= 0 {
		t = DefaultTimeout
	}
	return base{db: pg.DB, timeout: t}
}

func (b base) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b base) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return database.WithTx(ctx, b.db, fn)
}

func isUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// classify passes sentinels through and maps driver faults to the taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, ErrNotFound), stderrors.Is(err, ErrStale),
		stderrors.Is(err, ErrDuplicate), stderrors.Is(err, ErrInsufficientPending):
		return err
	}
	// Class 22 is bad input (a malformed uuid, an out of range number).
	// Retrying it cannot succeed.
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code.Class() == dataException {
		return errors.NewInvalidRequestError(op + ": " + pqErr.Message)
	}
	return errors.FromStore(op, err)
}

// Audit writes one audit_log row. Callers treat failure as non-fatal.
func Audit(ctx context.Context, db sqlx.ExecerContext, eventType, resourceType, resourceID string, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details)
		VALUES ($1, $2, $3, $4)`,
		eventType, resourceType, resourceID, raw,
	)
	return err
}
