/**
 * @description
 * This file provides the PostgreSQL implementation of the checkout saga ledger
 * and its transactional event outbox. Every status change that should be
 * announced writes its outbox rows in the same transaction, so an event is
 * never published for a change that did not commit.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the checkout attempt model.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

const checkoutSchema = `
CREATE TABLE IF NOT EXISTS checkout_attempts (
	id UUID PRIMARY KEY,
	idempotency_key TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	tree_id TEXT NOT NULL,
	plan_years INT NOT NULL,
	amount_minor BIGINT NOT NULL,
	currency TEXT NOT NULL,
	payment_intent_id TEXT UNIQUE,
	status TEXT NOT NULL DEFAULT 'pending',
	adoption_id TEXT,
	aggregate_applied BOOLEAN NOT NULL DEFAULT FALSE,
	tree_marked BOOLEAN NOT NULL DEFAULT FALSE,
	failure_reason TEXT,
	request JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_checkout_attempts_status_updated
	ON checkout_attempts (status, updated_at);

CREATE TABLE IF NOT EXISTS event_outbox (
	id BIGSERIAL PRIMARY KEY,
	exchange TEXT NOT NULL,
	routing_key TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processing_started_at TIMESTAMPTZ,
	published_at TIMESTAMPTZ,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_event_outbox_status_next
	ON event_outbox (status, next_attempt_at);
`

const checkoutColumns = `id, idempotency_key, user_id, tree_id, plan_years, amount_minor, currency,
	payment_intent_id, status, adoption_id, aggregate_applied, tree_marked, failure_reason,
	request::text, created_at, updated_at`

// PostgresCheckoutRepository implements CheckoutRepository and OutboxRepository.
type PostgresCheckoutRepository struct {
	db       *pgxpool.Pool
	exchange string
}

// NewPostgresCheckoutRepository creates the ledger repository. Outbox rows are
// addressed to the given exchange.
func NewPostgresCheckoutRepository(db *pgxpool.Pool, exchange string) *PostgresCheckoutRepository {
	return &PostgresCheckoutRepository{db: db, exchange: exchange}
}

// EnsureSchema creates the ledger and outbox tables when missing.
func (r *PostgresCheckoutRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, checkoutSchema); err != nil {
		return fmt.Errorf("failed to ensure checkout schema: %w", err)
	}
	return nil
}

func scanCheckoutAttempt(row pgx.Row) (*domain.CheckoutAttempt, error) {
	var (
		a           domain.CheckoutAttempt
		requestText string
	)
	err := row.Scan(
		&a.ID, &a.IdempotencyKey, &a.UserID, &a.TreeID, &a.PlanYears, &a.AmountMinor, &a.Currency,
		&a.PaymentIntentID, &a.Status, &a.AdoptionID, &a.AggregateApplied, &a.TreeMarked, &a.FailureReason,
		&requestText, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(requestText), &a.Request); err != nil {
		return nil, fmt.Errorf("failed to decode checkout request %s: %w", a.ID, err)
	}
	return &a, nil
}

func (r *PostgresCheckoutRepository) CreateCheckoutAttempt(ctx context.Context, attempt *domain.CheckoutAttempt) (*domain.CheckoutAttempt, bool, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	request, err := json.Marshal(attempt.Request)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO checkout_attempts (id, idempotency_key, user_id, tree_id, plan_years, amount_minor, currency, status, request)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8::jsonb)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + checkoutColumns

	created, err := scanCheckoutAttempt(r.db.QueryRow(ctx, query,
		attempt.ID,
		attempt.IdempotencyKey,
		attempt.UserID,
		attempt.TreeID,
		attempt.PlanYears,
		attempt.AmountMinor,
		attempt.Currency,
		string(request),
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanCheckoutAttempt(r.db.QueryRow(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_attempts WHERE idempotency_key = $1`, attempt.IdempotencyKey))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresCheckoutRepository) GetCheckoutAttempt(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error) {
	a, err := scanCheckoutAttempt(r.db.QueryRow(ctx, `SELECT `+checkoutColumns+` FROM checkout_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCheckoutNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresCheckoutRepository) FindCheckoutAttemptByIntentID(ctx context.Context, paymentIntentID string) (*domain.CheckoutAttempt, error) {
	a, err := scanCheckoutAttempt(r.db.QueryRow(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_attempts WHERE payment_intent_id = $1`, paymentIntentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCheckoutNotFound
		}
		return nil, err
	}
	return a, nil
}

// SetCheckoutIntent stores the provider intent id on a pending attempt.
func (r *PostgresCheckoutRepository) SetCheckoutIntent(ctx context.Context, id uuid.UUID, paymentIntentID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE checkout_attempts
		SET payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1 AND (payment_intent_id IS NULL OR payment_intent_id = $2)
	`, id, paymentIntentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("payment intent %s already linked to another checkout: %w", paymentIntentID, ErrCheckoutStateConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckoutStateConflict
	}
	return nil
}

func (r *PostgresCheckoutRepository) TransitionCheckoutStatus(ctx context.Context, id uuid.UUID, from []string, to string) (*domain.CheckoutAttempt, error) {
	query := `
		UPDATE checkout_attempts
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3::text[])
		RETURNING ` + checkoutColumns
	a, err := scanCheckoutAttempt(r.db.QueryRow(ctx, query, id, to, from))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, getErr := r.GetCheckoutAttempt(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrCheckoutStateConflict
}

// Follow-up flags only ever move from false to true.
func (r *PostgresCheckoutRepository) MarkCheckoutRecorded(ctx context.Context, id uuid.UUID, adoptionID string, aggregateApplied, treeMarked bool, events ...OutboxEvent) error {
	return r.updateWithEvents(ctx, events, `
		UPDATE checkout_attempts
		SET status = 'recorded', adoption_id = $2,
			aggregate_applied = aggregate_applied OR $3, tree_marked = tree_marked OR $4,
			failure_reason = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, adoptionID, aggregateApplied, treeMarked)
}

func (r *PostgresCheckoutRepository) UpdateCheckoutFollowUps(ctx context.Context, id uuid.UUID, aggregateApplied, treeMarked bool, events ...OutboxEvent) error {
	return r.updateWithEvents(ctx, events, `
		UPDATE checkout_attempts
		SET aggregate_applied = aggregate_applied OR $2, tree_marked = tree_marked OR $3, updated_at = NOW()
		WHERE id = $1
	`, id, aggregateApplied, treeMarked)
}

func (r *PostgresCheckoutRepository) SetCheckoutFailureReason(ctx context.Context, id uuid.UUID, reason string, events ...OutboxEvent) error {
	return r.updateWithEvents(ctx, events, `
		UPDATE checkout_attempts
		SET failure_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, id, truncateReason(reason))
}

// MarkCheckoutFailed is terminal and never overrides a recorded attempt.
func (r *PostgresCheckoutRepository) MarkCheckoutFailed(ctx context.Context, id uuid.UUID, reason string, events ...OutboxEvent) error {
	return r.updateWithEvents(ctx, events, `
		UPDATE checkout_attempts
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`, id, truncateReason(reason))
}

func (r *PostgresCheckoutRepository) updateWithEvents(ctx context.Context, events []OutboxEvent, query string, args ...interface{}) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckoutStateConflict
	}
	for _, event := range events {
		if err := enqueueEventTx(ctx, tx, r.exchange, event.RoutingKey, event.Payload); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListStaleCheckoutAttempts returns unfinished attempts last touched before the cutoff.
func (r *PostgresCheckoutRepository) ListStaleCheckoutAttempts(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.CheckoutAttempt, error) {
	return r.listAttempts(ctx, `
		SELECT `+checkoutColumns+`
		FROM checkout_attempts
		WHERE status IN ('pending', 'confirmed') AND payment_intent_id IS NOT NULL AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, updatedBefore, limit)
}

// ListCheckoutFollowUps returns recorded attempts with best-effort steps outstanding.
func (r *PostgresCheckoutRepository) ListCheckoutFollowUps(ctx context.Context, limit int) ([]domain.CheckoutAttempt, error) {
	return r.listAttempts(ctx, `
		SELECT `+checkoutColumns+`
		FROM checkout_attempts
		WHERE status = 'recorded' AND (aggregate_applied = FALSE OR tree_marked = FALSE)
		ORDER BY updated_at
		LIMIT $1
	`, limit)
}

func (r *PostgresCheckoutRepository) listAttempts(ctx context.Context, query string, args ...interface{}) ([]domain.CheckoutAttempt, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.CheckoutAttempt
	for rows.Next() {
		a, err := scanCheckoutAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ClaimOutboxMessages locks a batch of due outbox rows for publication.
// Rows stuck in processing longer than staleAfterSeconds are reclaimed.
func (r *PostgresCheckoutRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM event_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts
	`

	rows, err := r.db.Query(ctx, query, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg         OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresCheckoutRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published', published_at = NOW(), processing_started_at = NULL, last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (r *PostgresCheckoutRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, truncateReason(reason))
	return err
}

func enqueueEventTx(ctx context.Context, tx pgx.Tx, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

const maxReasonBytes = 2000

// truncateReason caps reason at maxReasonBytes without splitting a UTF-8 rune.
func truncateReason(reason string) string {
	if len(reason) <= maxReasonBytes {
		return reason
	}
	n := maxReasonBytes
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
