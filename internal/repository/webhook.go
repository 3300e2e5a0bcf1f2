package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
)

const webhookColumns = `id, provider, event, signature, payload, status,
	error, attempts, processed_at, created_at`

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// InsertIfAbsent stores the webhook unless a row with the same
// (provider, signature) already exists. The unique index makes the check
// atomic: two simultaneous duplicate deliveries cannot both pass.
func (r *WebhookRepository) InsertIfAbsent(ctx context.Context, hook *domain.PaymentWebhook) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_webhooks (
			id, provider, event, signature, payload, status, attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, signature) DO NOTHING`,
		hook.ID, hook.Provider, hook.Event, hook.Signature, hook.Payload,
		hook.Status, hook.Attempts, hook.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("InsertIfAbsent: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("InsertIfAbsent: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *WebhookRepository) GetByProviderSignature(ctx context.Context, provider, signature string) (*domain.PaymentWebhook, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM payment_webhooks
		WHERE provider = $1 AND signature = $2`,
		provider, signature,
	)
	h, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderSignature: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderSignature: %w", err)
	}
	return h, nil
}

// Supersede retires a stored row whose replay window has passed so the same
// (provider, signature) pair can be ingested again as a fresh delivery.
func (r *WebhookRepository) Supersede(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_webhooks
		SET signature = signature || ':superseded:' || id::text
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}
	return nil
}

func (r *WebhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.updateStatus(ctx, r.db, id, domain.WebhookStatusProcessed, nil)
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id uuid.UUID, handlerErr string) error {
	return r.updateStatus(ctx, r.db, id, domain.WebhookStatusFailed, &handlerErr)
}

// MarkProcessedTx and MarkFailedTx are the transactional variants used by the
// replayer, which must resolve a claimed row on the same transaction that
// holds its lock.
func (r *WebhookRepository) MarkProcessedTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return r.updateStatus(ctx, tx, id, domain.WebhookStatusProcessed, nil)
}

func (r *WebhookRepository) MarkFailedTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, handlerErr string) error {
	return r.updateStatus(ctx, tx, id, domain.WebhookStatusFailed, &handlerErr)
}

func (r *WebhookRepository) updateStatus(ctx context.Context, ex execer, id uuid.UUID, status domain.WebhookStatus, handlerErr *string) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE payment_webhooks
		SET status = $1, error = $2, attempts = attempts + 1, processed_at = now()
		WHERE id = $3`,
		status, handlerErr, id,
	)
	if err != nil {
		return fmt.Errorf("updateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("updateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// ClaimStalePending locks rows stored but never dispatched, typically after
// a crash between insert and dispatch. The row locks are held by tx, so a
// concurrent replayer skips them until the caller commits; the caller must
// resolve each claimed row on the same transaction.
func (r *WebhookRepository) ClaimStalePending(ctx context.Context, tx *sql.Tx, olderThan, limit int) ([]domain.PaymentWebhook, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM payment_webhooks
		WHERE status = $1 AND created_at < now() - make_interval(secs => $2)
		ORDER BY created_at LIMIT $3 FOR UPDATE SKIP LOCKED`,
		domain.WebhookStatusPending, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimStalePending: %w", err)
	}
	defer rows.Close()

	var hooks []domain.PaymentWebhook
	for rows.Next() {
		h, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimStalePending: scan: %w", err)
		}
		hooks = append(hooks, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimStalePending: rows: %w", err)
	}
	return hooks, nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentWebhook, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM payment_webhooks WHERE id = $1`, id,
	)
	h, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return h, nil
}

func scanWebhook(s scanner) (*domain.PaymentWebhook, error) {
	var h domain.PaymentWebhook
	err := s.Scan(
		&h.ID, &h.Provider, &h.Event, &h.Signature, &h.Payload, &h.Status,
		&h.Error, &h.Attempts, &h.ProcessedAt, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}
