package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lead-funnel/internal/common/database"
	"lead-funnel/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	OutboxPending    = "pending"
	OutboxPublished  = "published"
	OutboxDeadLetter = "dead_letter"
)

// OutboxEvent is a claimed outbox row. ClaimToken proves ownership of the
// claim when marking the outcome.
type OutboxEvent struct {
	ID             string    `db:"id"`
	AggregateID    string    `db:"aggregate_id"`
	EventType      string    `db:"event_type"`
	IdempotencyKey string    `db:"idempotency_key"`
	Payload        []byte    `db:"payload"`
	Attempts       int       `db:"attempts"`
	CreatedAt      time.Time `db:"created_at"`
	ClaimToken     string    `db:"claim_token"`
}

// Decode unmarshals the payload into an AttributionEvent.
func (e *OutboxEvent) Decode() (*models.AttributionEvent, error) {
	var ev models.AttributionEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode outbox payload %s: %w", e.ID, err)
	}
	return &ev, nil
}

// AppendEvent writes ev to the outbox on the caller's transaction. A repeated
// idempotency key is ignored.
func AppendEvent(ctx context.Context, tx sqlx.ExecerContext, ev *models.AttributionEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, idempotency_key, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		ev.EventID, ev.LeadID, ev.Type, ev.IdempotencyKey, payload,
	)
	return err
}

type OutboxRepository struct {
	base
}

func NewOutboxRepository(pg *database.PostgresClient) *OutboxRepository {
	return &OutboxRepository{base: newBase(pg)}
}

const claimReturning = `RETURNING id, aggregate_id, event_type, idempotency_key, payload, attempts, created_at, claim_token`

// Claim leases up to batch pending events for ttl. Rows locked by another
// relay or still under an unexpired claim are skipped.
func (r *OutboxRepository) Claim(ctx context.Context, batch int, ttl time.Duration) ([]OutboxEvent, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var events []OutboxEvent
	err := r.db.SelectContext(ctx, &events, `
		UPDATE outbox_events
		SET claim_token = $1, claim_until = now() + ($2 * interval '1 millisecond')
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending' AND (claim_until IS NULL OR claim_until < now())
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		`+claimReturning,
		uuid.New().String(), ttl.Milliseconds(), batch,
	)
	if err != nil {
		return nil, classify("claim outbox", err)
	}
	return events, nil
}

// ClaimByKey leases a single pending event for inline dispatch. It returns
// ErrNotFound when the event is already published or claimed elsewhere.
func (r *OutboxRepository) ClaimByKey(ctx context.Context, key string, ttl time.Duration) (*OutboxEvent, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var ev OutboxEvent
	err := r.db.GetContext(ctx, &ev, `
		UPDATE outbox_events
		SET claim_token = $1, claim_until = now() + ($2 * interval '1 millisecond')
		WHERE idempotency_key = $3 AND status = 'pending'
		  AND (claim_until IS NULL OR claim_until < now())
		`+claimReturning,
		uuid.New().String(), ttl.Milliseconds(), key,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("claim outbox event", err)
	}
	return &ev, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ev *OutboxEvent) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'published', published_at = now(), attempts = attempts + 1,
		    claim_token = NULL, claim_until = NULL, last_error = ''
		WHERE id = $1 AND claim_token = $2`,
		ev.ID, ev.ClaimToken,
	)
	return classify("mark outbox published", err)
}

// MarkFailed releases the claim and returns the new attempt count.
func (r *OutboxRepository) MarkFailed(ctx context.Context, ev *OutboxEvent, cause string) (int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var attempts int
	err := r.db.GetContext(ctx, &attempts, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $3, claim_token = NULL, claim_until = NULL
		WHERE id = $1 AND claim_token = $2
		RETURNING attempts`,
		ev.ID, ev.ClaimToken, cause,
	)
	if err == sql.ErrNoRows {
		return ev.Attempts, ErrStale
	}
	if err != nil {
		return ev.Attempts, classify("mark outbox failed", err)
	}
	return attempts, nil
}

func (r *OutboxRepository) MarkDeadLettered(ctx context.Context, ev *OutboxEvent, cause string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'dead_letter', last_error = $2, claim_token = NULL, claim_until = NULL
		WHERE id = $1`,
		ev.ID, cause,
	)
	return classify("dead-letter outbox event", err)
}

// PendingCount reports how many events still await delivery.
func (r *OutboxRepository) PendingCount(ctx context.Context) (int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE status = 'pending'`); err != nil {
		return 0, classify("count outbox", err)
	}
	return n, nil
}
